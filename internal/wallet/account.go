package wallet

import (
	"fmt"

	"github.com/OKaluzny/evm-account/internal/hd"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/tyler-smith/go-bip39"
)

// Account is the Ethereum key pair derived from the wallet mnemonic. The
// host encrypts and stores it; nothing here persists key material.
type Account struct {
	PrivateKey     []byte
	Address        Address
	DerivationPath string
}

// Zero wipes the private key.
func (a *Account) Zero() {
	ZeroBytes(a.PrivateKey)
}

// SeedFromMnemonic returns the BIP39 seed of mnemonic with an empty
// passphrase, the same seed the primary account uses. Callers should wipe it
// with ZeroBytes when done.
func SeedFromMnemonic(mnemonic string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", models.ErrValidation)
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// DeriveAccount derives the account at path from mnemonic.
func DeriveAccount(mnemonic, path string) (*Account, error) {
	seed, err := SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(seed)

	key, err := hd.DerivePath(seed, path)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Zero()

	privateKey := make([]byte, len(key.Key))
	copy(privateKey, key.Key[:])

	address, err := AddressFromPrivateKey(privateKey)
	if err != nil {
		ZeroBytes(privateKey)
		return nil, err
	}

	return &Account{
		PrivateKey:     privateKey,
		Address:        address,
		DerivationPath: path,
	}, nil
}
