package storage

import (
	"context"

	"github.com/OKaluzny/evm-account/pkg/models"
)

// SeedFunc returns the starting nonce of an address, typically
// eth_getTransactionCount(address, "pending").
type SeedFunc func(ctx context.Context) (uint64, error)

// NonceStore sequences nonces per sending address.
type NonceStore interface {
	// Next reserves and returns the next nonce for address. The first call for
	// an address, or the first after Reset, initialises the counter from seed.
	// Concurrent callers for the same address never receive the same nonce.
	Next(ctx context.Context, address string, seed SeedFunc) (uint64, error)
	// Reset drops the counter for address so the next call re-seeds it.
	Reset(address string) error
}

// TxStore provides idempotent transaction storage.
type TxStore interface {
	// Get returns a previously stored transaction by idempotency key, or nil if not found.
	Get(idempotencyKey string) (*models.SignedTransaction, error)
	// Put stores a transaction keyed by idempotency key.
	Put(idempotencyKey string, tx *models.SignedTransaction) error
}
