package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/OKaluzny/evm-account/internal/rlp"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// compactHeaderBase is the first byte of a btcec compact signature for an
// uncompressed key, before the recovery id is added.
const compactHeaderBase = 27

// ETHSigner signs legacy Ethereum transactions with EIP-155 replay protection.
// It keeps no state; one value can be shared between goroutines.
type ETHSigner struct{}

// NewETHSigner returns a new Ethereum transaction signer.
func NewETHSigner() *ETHSigner {
	return &ETHSigner{}
}

// Sign hashes tx, signs the hash with privateKey (RFC 6979, low-S) and
// returns the RLP-encoded signed transaction. The chain id comes from tx.
func (s *ETHSigner) Sign(ctx context.Context, tx *models.Transaction, privateKey []byte) (*models.SignedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields, err := txFields(tx)
	if err != nil {
		return nil, err
	}
	hash := signingHash(fields, tx.ChainID)

	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	recoveryID, r, sv, err := splitCompact(ecdsa.SignCompact(priv, hash, false))
	if err != nil {
		return nil, err
	}

	// EIP-155: v = chainId*2 + 35 + recoveryId
	v := new(big.Int).Mul(tx.ChainID, big.NewInt(2))
	v.Add(v, big.NewInt(35+int64(recoveryID)))

	from, err := AddressFromPublicKey(priv.PubKey().SerializeUncompressed())
	if err != nil {
		return nil, err
	}
	recovered, err := RecoverAddress(hash, r, sv, recoveryID)
	if err != nil {
		return nil, err
	}
	if recovered != from {
		return nil, fmt.Errorf("%w: signature recovers to %s, expected %s", models.ErrSigning, recovered, from)
	}

	raw := rlp.EncodeList(append(fields, rlp.BigInt(v), rlp.BigInt(r), rlp.BigInt(sv))...)

	signedTx := *tx
	signedTx.From = from.Hex()

	return &models.SignedTransaction{
		Tx:          &signedTx,
		SigningHash: hash,
		V:           v,
		R:           r,
		S:           sv,
		RecoveryID:  recoveryID,
		TxHash:      "0x" + hex.EncodeToString(keccak256(raw)),
		RawSigned:   raw,
	}, nil
}

// SigningHash returns keccak256(rlp([nonce, gasPrice, gasLimit, to, value,
// data, chainId, "", ""])), the EIP-155 digest that gets signed.
func SigningHash(tx *models.Transaction) ([]byte, error) {
	fields, err := txFields(tx)
	if err != nil {
		return nil, err
	}
	return signingHash(fields, tx.ChainID), nil
}

// RecoverAddress returns the address whose key produced (r, s, recoveryID)
// over hash.
func RecoverAddress(hash []byte, r, s *big.Int, recoveryID byte) (Address, error) {
	if recoveryID > 3 || r == nil || s == nil || r.BitLen() > 256 || s.BitLen() > 256 {
		return Address{}, fmt.Errorf("%w: malformed signature", models.ErrSigning)
	}
	compact := make([]byte, 65)
	compact[0] = compactHeaderBase + recoveryID
	r.FillBytes(compact[1:33])
	s.FillBytes(compact[33:65])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return Address{}, fmt.Errorf("%w: recover public key: %v", models.ErrSigning, err)
	}
	return AddressFromPublicKey(pub.SerializeUncompressed())
}

// splitCompact unpacks a 65-byte btcec compact signature for an uncompressed
// key into its recovery id, r and s.
func splitCompact(sig []byte) (byte, *big.Int, *big.Int, error) {
	if len(sig) != 65 || sig[0] < compactHeaderBase || sig[0] > compactHeaderBase+3 {
		return 0, nil, nil, fmt.Errorf("%w: malformed compact signature", models.ErrSigning)
	}
	recoveryID := sig[0] - compactHeaderBase
	// Ids 2 and 3 mean r overflowed n; EIP-155 v cannot carry them.
	if recoveryID > 1 {
		return 0, nil, nil, fmt.Errorf("%w: unsupported recovery id %d", models.ErrSigning, recoveryID)
	}
	return recoveryID, new(big.Int).SetBytes(sig[1:33]), new(big.Int).SetBytes(sig[33:65]), nil
}

func signingHash(fields []rlp.Item, chainID *big.Int) []byte {
	unsigned := make([]rlp.Item, 0, len(fields)+3)
	unsigned = append(unsigned, fields...)
	unsigned = append(unsigned, rlp.BigInt(chainID), rlp.Bytes(nil), rlp.Bytes(nil))
	return keccak256(rlp.EncodeList(unsigned...))
}

// txFields validates tx and returns its first six RLP fields. The returned
// slice has spare capacity for the three signature fields.
func txFields(tx *models.Transaction) ([]rlp.Item, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", models.ErrEncoding)
	}
	if tx.ChainID == nil || tx.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be positive", models.ErrEncoding)
	}
	for name, v := range map[string]*big.Int{"value": tx.Value, "gas price": tx.GasPrice} {
		if v != nil && v.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative %s", models.ErrEncoding, name)
		}
	}

	// An empty recipient is a contract creation and encodes as the empty string.
	var to rlp.Bytes
	if tx.To != "" {
		addr, err := ParseAddress(tx.To)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient %q is not a 20-byte address", models.ErrEncoding, tx.To)
		}
		to = addr[:]
	}

	fields := make([]rlp.Item, 0, 9)
	fields = append(fields,
		rlp.Uint(tx.Nonce),
		rlp.BigInt(tx.GasPrice),
		rlp.Uint(tx.GasLimit),
		to,
		rlp.BigInt(tx.Value),
		rlp.Bytes(tx.Data),
	)
	return fields, nil
}
