package wallet

import (
	"context"

	"github.com/OKaluzny/evm-account/pkg/models"
)

// Generator derives addresses from an HD seed.
type Generator interface {
	// GenerateFromSeed derives an address from HD seed bytes at the given index
	GenerateFromSeed(seed []byte, index uint32) (*models.DerivedAddress, error)
}

// Signer defines the interface for transaction signing.
// Implementations must not retain or log privateKey.
type Signer interface {
	// Sign signs a transaction and returns its broadcastable form
	Sign(ctx context.Context, tx *models.Transaction, privateKey []byte) (*models.SignedTransaction, error)
}

var (
	_ Generator = (*ETHGenerator)(nil)
	_ Signer    = (*ETHSigner)(nil)
)
