package models

import (
	"encoding/hex"
	"math/big"
)

// Network represents the Ethereum network the account talks to
type Network string

// Supported networks.
const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "sepolia"
)

// DerivedAddress holds a generated address with its derivation path
type DerivedAddress struct {
	Address        string `json:"address"`
	DerivationPath string `json:"derivation_path"`
	PublicKey      string `json:"public_key"`
}

// Transaction is an unsigned legacy (EIP-155) Ethereum transaction.
// Amounts are in wei. An empty To means contract creation.
type Transaction struct {
	From     string   `json:"from,omitempty"`
	To       string   `json:"to"`
	Value    *big.Int `json:"value"`
	GasPrice *big.Int `json:"gas_price"`
	GasLimit uint64   `json:"gas_limit"`
	Nonce    uint64   `json:"nonce"`
	Data     []byte   `json:"data,omitempty"`
	ChainID  *big.Int `json:"chain_id"`
}

// SignedTransaction is the broadcastable form of a Transaction
type SignedTransaction struct {
	Tx          *Transaction `json:"tx"`
	SigningHash []byte       `json:"-"`
	V           *big.Int     `json:"v"`
	R           *big.Int     `json:"r"`
	S           *big.Int     `json:"s"`
	RecoveryID  byte         `json:"recovery_id"`
	TxHash      string       `json:"tx_hash"`
	RawSigned   []byte       `json:"-"`
}

// RawHex is the 0x-prefixed payload for eth_sendRawTransaction.
func (s *SignedTransaction) RawHex() string {
	return "0x" + hex.EncodeToString(s.RawSigned)
}

// Receipt is the subset of eth_getTransactionReceipt the wallet consumes.
// Quantities stay hex-encoded as returned by the node.
type Receipt struct {
	TransactionHash   string `json:"transactionHash"`
	Status            string `json:"status"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice,omitempty"`
	BlockNumber       string `json:"blockNumber"`
	BlockHash         string `json:"blockHash"`
	From              string `json:"from"`
	To                string `json:"to,omitempty"`
	ContractAddress   string `json:"contractAddress,omitempty"`
}

// ReceiptStatusSuccess is the status value of a successfully executed transaction.
const ReceiptStatusSuccess = "0x1"

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccess
}
