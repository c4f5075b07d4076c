package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OKaluzny/evm-account/pkg/models"
)

type nonceState struct {
	mu     sync.Mutex
	seeded bool
	next   uint64
}

// MemoryNonceStore is an in-memory NonceStore. Addresses are compared
// case-insensitively.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]*nonceState
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]*nonceState)}
}

func (s *MemoryNonceStore) state(address string) *nonceState {
	key := strings.ToLower(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.nonces[key]
	if !ok {
		st = &nonceState{}
		s.nonces[key] = st
	}
	return st
}

func (s *MemoryNonceStore) Next(ctx context.Context, address string, seed SeedFunc) (uint64, error) {
	st := s.state(address)

	// Held across seeding so a second caller waits for the first seed.
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.seeded {
		if seed == nil {
			return 0, fmt.Errorf("nonce for %s: no seed function", address)
		}
		n, err := seed(ctx)
		if err != nil {
			return 0, fmt.Errorf("seed nonce for %s: %w", address, err)
		}
		st.next = n
		st.seeded = true
	}

	n := st.next
	st.next++
	return n, nil
}

func (s *MemoryNonceStore) Reset(address string) error {
	st := s.state(address)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seeded = false
	st.next = 0
	return nil
}

// MemoryTxStore is an in-memory TxStore.
type MemoryTxStore struct {
	mu  sync.RWMutex
	txs map[string]*models.SignedTransaction
}

func NewMemoryTxStore() *MemoryTxStore {
	return &MemoryTxStore{txs: make(map[string]*models.SignedTransaction)}
}

func (s *MemoryTxStore) Get(idempotencyKey string) (*models.SignedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txs[idempotencyKey], nil
}

func (s *MemoryTxStore) Put(idempotencyKey string, tx *models.SignedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[idempotencyKey] = tx
	return nil
}
