package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/OKaluzny/evm-account/internal/config"
	"github.com/OKaluzny/evm-account/internal/listener"
	"github.com/OKaluzny/evm-account/internal/rpc"
	"github.com/OKaluzny/evm-account/internal/storage"
	"github.com/OKaluzny/evm-account/internal/tx"
	"github.com/OKaluzny/evm-account/internal/wallet"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// MnemonicEnv names the variable the mnemonic is read from before prompting.
const MnemonicEnv = "EVM_MNEMONIC"

type app struct {
	configPath  string
	testnet     bool
	logLevel    string
	metricsAddr string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "evmwallet",
		Short:         "Ethereum companion account for a BIP39 wallet",
		Long:          "Derives the m/44'/60'/0'/0/0 account of a BIP39 mnemonic and builds, signs,\nbroadcasts and confirms legacy EIP-155 transactions over JSON-RPC.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (yaml, json or toml)")
	flags.BoolVar(&a.testnet, "testnet", false, "use the testnet endpoint instead of mainnet")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")

	root.AddCommand(
		a.addressCmd(),
		a.balanceCmd(),
		a.sendCmd(),
		a.selfTestCmd(),
		a.waitCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.testnet {
		cfg.Mainnet = false
	}
	a.cfg = cfg

	if err := rpc.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if a.metricsAddr != "" {
		go a.serveMetrics()
	}

	slog.Debug("configuration loaded", "network", cfg.Network(), "rpc_url", cfg.RPCURL())
	return nil
}

func (a *app) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", a.metricsAddr)
	if err := http.ListenAndServe(a.metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}

func (a *app) client() *rpc.Client {
	return rpc.NewClient(a.cfg.RPCURL(), rpc.WithTimeout(a.cfg.RequestTimeout))
}

func (a *app) sender(client *rpc.Client) *tx.Sender {
	return tx.NewSender(
		tx.SenderConfig{ExpectedChainID: a.cfg.ExpectedChainID, GasLimit: a.cfg.GasLimit},
		client,
		wallet.NewETHSigner(),
		storage.NewMemoryNonceStore(),
		storage.NewMemoryTxStore(),
	)
}

func (a *app) waiter(client *rpc.Client) *listener.Waiter {
	return listener.NewWaiter(client, a.cfg.PollInterval)
}

// account derives the configured account, or the one at index when index >= 0.
func (a *app) account(cmd *cobra.Command, index int) (*wallet.Account, error) {
	mnemonic, err := readMnemonic(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	path := a.cfg.DerivationPath
	if index >= 0 {
		path = fmt.Sprintf(wallet.DefaultPathTemplate, index)
	}
	return wallet.DeriveAccount(mnemonic, path)
}

// derive resolves the public side of the configured account, or of the one
// at index when index >= 0, without handing out the private key.
func (a *app) derive(cmd *cobra.Command, gen *wallet.ETHGenerator, index int) (*models.DerivedAddress, error) {
	mnemonic, err := readMnemonic(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer wallet.ZeroBytes(seed)

	if index >= 0 {
		return gen.GenerateFromSeed(seed, uint32(index))
	}
	return gen.GenerateFromPath(seed, a.cfg.DerivationPath)
}

// readMnemonic reads the mnemonic from MnemonicEnv or, on a terminal, from a
// prompt that does not echo.
func readMnemonic(in io.Reader, prompt io.Writer) (string, error) {
	if m := strings.TrimSpace(os.Getenv(MnemonicEnv)); m != "" {
		return normalizeMnemonic(m), nil
	}

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no mnemonic: set %s or run in a terminal", MnemonicEnv)
	}

	fmt.Fprint(prompt, "Mnemonic: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read mnemonic: %w", err)
	}
	defer func() {
		for i := range b {
			b[i] = 0
		}
	}()
	return normalizeMnemonic(string(b)), nil
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}
