package tx

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/OKaluzny/evm-account/internal/rpc"
	"github.com/OKaluzny/evm-account/internal/storage"
	"github.com/OKaluzny/evm-account/internal/wallet"
	"github.com/OKaluzny/evm-account/pkg/models"
)

// DefaultGasLimit is the gas used by a plain value transfer.
const DefaultGasLimit = 21000

// Chain is the part of the JSON-RPC gateway the sender depends on.
// *rpc.Client implements it.
type Chain interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, address, block string) (uint64, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	GetChainID(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
}

// SenderConfig holds configurable parameters for the sender.
type SenderConfig struct {
	// ExpectedChainID rejects sends when the node reports another chain.
	// Zero disables the check.
	ExpectedChainID uint64
	// GasLimit is used when a request does not set its own.
	GasLimit uint64
}

// Sender runs the send flow: fetch chain state, reserve a nonce, sign,
// broadcast. It does not wait for confirmation and never retries a broadcast.
type Sender struct {
	chain      Chain
	signer     wallet.Signer
	nonceStore storage.NonceStore
	txStore    storage.TxStore
	logger     *slog.Logger
	cfg        SenderConfig
}

// NewSender creates a sender over chain using signer and the given stores.
func NewSender(cfg SenderConfig, chain Chain, signer wallet.Signer, nonces storage.NonceStore, txs storage.TxStore) *Sender {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	return &Sender{
		chain:      chain,
		signer:     signer,
		nonceStore: nonces,
		txStore:    txs,
		logger:     slog.Default().With("component", "sender"),
		cfg:        cfg,
	}
}

// SendRequest represents a request to send a transaction.
type SendRequest struct {
	IdempotencyKey string // optional; repeated keys return the stored transaction
	To             string // empty deploys Data as a contract
	Value          *big.Int
	Data           []byte
	GasLimit       uint64 // zero uses SenderConfig.GasLimit
	PrivateKey     []byte
}

// Send builds, signs and broadcasts a transaction from the account owning
// req.PrivateKey.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*models.SignedTransaction, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.txStore.Get(req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("tx store get: %w", err)
		}
		if existing != nil {
			s.logger.Info("duplicate request, returning existing tx",
				"idempotency_key", req.IdempotencyKey,
				"tx_hash", existing.TxHash,
			)
			return existing, nil
		}
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = s.cfg.GasLimit
	}

	from, err := wallet.AddressFromPrivateKey(req.PrivateKey)
	if err != nil {
		return nil, err
	}
	sender := from.Hex()

	chainID, err := s.chain.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if s.cfg.ExpectedChainID != 0 && (!chainID.IsUint64() || chainID.Uint64() != s.cfg.ExpectedChainID) {
		return nil, fmt.Errorf("%w: node is on chain %s, expected %d", models.ErrValidation, chainID, s.cfg.ExpectedChainID)
	}

	gasPrice, err := s.chain.GetGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	balance, err := s.chain.GetBalance(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: insufficient balance: have %s wei, need %s wei", models.ErrValidation, balance, cost)
	}

	nonce, err := s.nonceStore.Next(ctx, sender, func(ctx context.Context) (uint64, error) {
		return s.chain.GetTransactionCount(ctx, sender, rpc.BlockPending)
	})
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	tx := &models.Transaction{
		From:     sender,
		To:       req.To,
		Value:    value,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Nonce:    nonce,
		Data:     req.Data,
		ChainID:  chainID,
	}

	s.logger.Info("building transaction",
		"from", tx.From,
		"to", tx.To,
		"value", tx.Value,
		"nonce", tx.Nonce,
		"gas_price", tx.GasPrice,
		"chain_id", tx.ChainID,
	)

	signed, err := s.signer.Sign(ctx, tx, req.PrivateKey)
	if err != nil {
		s.releaseNonce(sender)
		return nil, fmt.Errorf("sign: %w", err)
	}

	hash, err := s.chain.SendRawTransaction(ctx, signed.RawSigned)
	if err != nil {
		s.releaseNonce(sender)
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	if !strings.EqualFold(hash, signed.TxHash) {
		s.logger.Warn("node returned unexpected transaction hash", "tx_hash", signed.TxHash, "node_hash", hash)
	}
	s.logger.Info("transaction broadcast successful", "tx_hash", signed.TxHash, "nonce", nonce)

	if req.IdempotencyKey != "" {
		if err := s.txStore.Put(req.IdempotencyKey, signed); err != nil {
			return nil, fmt.Errorf("tx store put: %w", err)
		}
	}

	return signed, nil
}

// SendSelfTest sends 1 wei from the account to itself, which checks key
// derivation, signing and node connectivity end to end.
func (s *Sender) SendSelfTest(ctx context.Context, privateKey []byte, idempotencyKey string) (*models.SignedTransaction, error) {
	from, err := wallet.AddressFromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, SendRequest{
		IdempotencyKey: idempotencyKey,
		To:             from.Hex(),
		Value:          big.NewInt(1),
		PrivateKey:     privateKey,
	})
}

// releaseNonce makes the next send re-read the pending nonce from the node,
// so a reserved but never broadcast nonce is reused.
func (s *Sender) releaseNonce(address string) {
	if err := s.nonceStore.Reset(address); err != nil {
		s.logger.Error("reset nonce failed", "address", address, "error", err)
	}
}

func validateRequest(req SendRequest) error {
	if req.To == "" && len(req.Data) == 0 {
		return fmt.Errorf("%w: recipient address is required", models.ErrValidation)
	}
	if req.To != "" && !wallet.IsValidAddress(req.To) {
		return fmt.Errorf("%w: invalid recipient address %q", models.ErrValidation, req.To)
	}
	if req.Value != nil && req.Value.Sign() < 0 {
		return fmt.Errorf("%w: negative value", models.ErrValidation)
	}
	return nil
}
