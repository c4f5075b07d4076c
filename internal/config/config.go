package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. EVM_MAINNET.
const EnvPrefix = "EVM"

// Default public endpoints.
const (
	DefaultMainnetRPCURL = "https://ethereum-rpc.publicnode.com"
	DefaultTestnetRPCURL = "https://ethereum-sepolia-rpc.publicnode.com"
)

// Config holds all configurable parameters of the account core.
type Config struct {
	// Network selection
	Mainnet       bool   `mapstructure:"mainnet"`
	MainnetRPCURL string `mapstructure:"mainnet_rpc_url"`
	TestnetRPCURL string `mapstructure:"testnet_rpc_url"`

	// Reject nodes reporting another chain id; 0 disables the check.
	ExpectedChainID uint64 `mapstructure:"expected_chain_id"`

	DerivationPath string `mapstructure:"derivation_path"`
	GasLimit       uint64 `mapstructure:"gas_limit"`

	// Confirmation waiter
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`

	// Per JSON-RPC request
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Mainnet:        true,
		MainnetRPCURL:  DefaultMainnetRPCURL,
		TestnetRPCURL:  DefaultTestnetRPCURL,
		DerivationPath: "m/44'/60'/0'/0/0",
		GasLimit:       21000,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 2 * time.Minute,
		RequestTimeout: 15 * time.Second,
	}
}

// FromEnv returns a Config populated from EVM_* environment variables,
// falling back to defaults for unset values.
func FromEnv() (Config, error) {
	return Load("")
}

// Load reads the optional config file at path (any format viper supports),
// then applies EVM_* environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("mainnet", d.Mainnet)
	v.SetDefault("mainnet_rpc_url", d.MainnetRPCURL)
	v.SetDefault("testnet_rpc_url", d.TestnetRPCURL)
	v.SetDefault("expected_chain_id", d.ExpectedChainID)
	v.SetDefault("derivation_path", d.DerivationPath)
	v.SetDefault("gas_limit", d.GasLimit)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("confirm_timeout", d.ConfirmTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
}

// Validate reports settings the account cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.RPCURL() == "" {
		errs = append(errs, fmt.Errorf("no RPC endpoint configured for %s", c.Network()))
	}
	if c.DerivationPath == "" {
		errs = append(errs, errors.New("derivation path is empty"))
	}
	if c.GasLimit == 0 {
		errs = append(errs, errors.New("gas limit must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, errors.New("confirm timeout must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return nil
}

// Network returns the selected network.
func (c Config) Network() models.Network {
	if c.Mainnet {
		return models.NetworkMainnet
	}
	return models.NetworkTestnet
}

// RPCURL returns the endpoint of the selected network.
func (c Config) RPCURL() string {
	if c.Mainnet {
		return c.MainnetRPCURL
	}
	return c.TestnetRPCURL
}
