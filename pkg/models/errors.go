package models

import (
	"errors"
	"fmt"
)

// Error kinds returned by the account core. Callers match them with errors.Is.
var (
	// ErrDerivation covers malformed derivation paths and unusable seeds or child indices.
	ErrDerivation = errors.New("derivation error")
	// ErrSigning covers private keys outside [1, n-1] and signature failures.
	ErrSigning = errors.New("signing error")
	// ErrEncoding covers malformed transaction fields.
	ErrEncoding = errors.New("encoding error")
	// ErrRPC covers transport failures and JSON-RPC error responses.
	ErrRPC = errors.New("rpc error")
	// ErrTimeout is returned when no receipt shows up before the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrValidation covers bad user input such as addresses, amounts or insufficient balance.
	ErrValidation = errors.New("validation error")
	// ErrTransactionFailed is returned with a mined receipt whose status is not 0x1.
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRPC) hold for server-side errors.
func (e *RPCError) Is(target error) bool {
	return target == ErrRPC
}
