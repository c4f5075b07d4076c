// Package hd implements BIP32 hierarchical deterministic private key
// derivation over secp256k1.
package hd

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/btcsuite/btcd/btcec/v2"
)

// HardenedOffset is the first hardened child index.
const HardenedOffset uint32 = 0x80000000

var masterSecret = []byte("Bitcoin seed")

// curveOrder is n, the order of the secp256k1 base point.
var curveOrder = btcec.S256().Params().N

// hmacSHA512 is swapped in tests to force out-of-range child keys.
var hmacSHA512 = func(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Key is one step of a derivation: a private key and its chain code.
type Key struct {
	Key       [32]byte
	ChainCode [32]byte
	// Index is the child index actually used to produce this key, hardened
	// offset included. It differs from the requested index only when BIP32
	// forced a skip.
	Index uint32
}

// Zero wipes the key material.
func (k *Key) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.ChainCode {
		k.ChainCode[i] = 0
	}
}

// MasterKeyFromSeed derives the BIP32 master key from a BIP39 seed.
func MasterKeyFromSeed(seed []byte) (*Key, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, fmt.Errorf("%w: seed must be 16 to 64 bytes, got %d", models.ErrDerivation, len(seed))
	}
	I := hmacSHA512(masterSecret, seed)
	if !validScalar(I[:32]) {
		return nil, fmt.Errorf("%w: seed yields an invalid master key", models.ErrDerivation)
	}
	return split(I, 0), nil
}

// DeriveHardened derives the hardened child index+2^31 of parent. index must
// be below 2^31.
func DeriveHardened(parent *Key, index uint32) (*Key, error) {
	if index >= HardenedOffset {
		return nil, fmt.Errorf("%w: hardened index %d out of range", models.ErrDerivation, index)
	}
	return deriveChild(parent, index+HardenedOffset)
}

// DeriveNonHardened derives the normal child index of parent. index must be
// below 2^31.
func DeriveNonHardened(parent *Key, index uint32) (*Key, error) {
	if index >= HardenedOffset {
		return nil, fmt.Errorf("%w: index %d is in the hardened range", models.ErrDerivation, index)
	}
	return deriveChild(parent, index)
}

// DerivePath derives the key at path (for example m/44'/60'/0'/0/0) from seed.
func DerivePath(seed []byte, path string) (*Key, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	key, err := MasterKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}

	for _, index := range indices {
		var child *Key
		if index >= HardenedOffset {
			child, err = DeriveHardened(key, index-HardenedOffset)
		} else {
			child, err = DeriveNonHardened(key, index)
		}
		key.Zero()
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
		key = child
	}
	return key, nil
}

// ParsePath parses a BIP32 path into child indices with the hardened offset
// applied. Hardened segments end in ' or h. "m" alone is the master key.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	segments := strings.Split(path, "/")
	if segments[0] != "m" {
		return nil, fmt.Errorf("%w: path %q must start with m", models.ErrDerivation, path)
	}

	indices := make([]uint32, 0, len(segments)-1)
	for _, segment := range segments[1:] {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}
		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil || uint32(val) >= HardenedOffset {
			return nil, fmt.Errorf("%w: invalid path segment %q in %q", models.ErrDerivation, segment, path)
		}

		index := uint32(val)
		if hardened {
			index += HardenedOffset
		}
		indices = append(indices, index)
	}
	return indices, nil
}

// deriveChild derives the child at index, moving on to the next index when
// the result is not a valid private key, as BIP32 requires. The search never
// crosses from the normal into the hardened range or past the last index.
func deriveChild(parent *Key, index uint32) (*Key, error) {
	hardened := index >= HardenedOffset
	for {
		child, ok := childAt(parent, index)
		if ok {
			return child, nil
		}

		next := index + 1
		if next == 0 || (next >= HardenedOffset) != hardened {
			return nil, fmt.Errorf("%w: no valid child key at or after index %d", models.ErrDerivation, index)
		}
		index = next
	}
}

func childAt(parent *Key, index uint32) (*Key, bool) {
	data := make([]byte, 0, 37)
	if index >= HardenedOffset {
		data = append(data, 0x00)
		data = append(data, parent.Key[:]...)
	} else {
		_, pub := btcec.PrivKeyFromBytes(parent.Key[:])
		data = append(data, pub.SerializeCompressed()...)
	}
	data = binary.BigEndian.AppendUint32(data, index)

	I := hmacSHA512(parent.ChainCode[:], data)
	childKey, ok := addModN(I[:32], parent.Key[:])
	if !ok {
		return nil, false
	}

	child := split(I, index)
	copy(child.Key[:], childKey)
	return child, true
}

// addModN returns (il + parent) mod n as 32 big-endian bytes. ok is false
// when il >= n or the sum is zero, the two cases where BIP32 discards the child.
func addModN(il, parent []byte) ([]byte, bool) {
	a := new(big.Int).SetBytes(il)
	if a.Cmp(curveOrder) >= 0 {
		return nil, false
	}
	sum := a.Add(a, new(big.Int).SetBytes(parent))
	sum.Mod(sum, curveOrder)
	if sum.Sign() == 0 {
		return nil, false
	}
	return sum.FillBytes(make([]byte, 32)), true
}

func validScalar(b []byte) bool {
	v := new(big.Int).SetBytes(b)
	return v.Sign() > 0 && v.Cmp(curveOrder) < 0
}

func split(I []byte, index uint32) *Key {
	k := &Key{Index: index}
	copy(k.Key[:], I[:32])
	copy(k.ChainCode[:], I[32:])
	return k
}
