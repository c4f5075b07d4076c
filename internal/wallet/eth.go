package wallet

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"

	"github.com/OKaluzny/evm-account/internal/hd"
	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// DefaultPathTemplate is the BIP-44 Ethereum path, {index} being the last level.
const DefaultPathTemplate = "m/44'/60'/0'/0/%d"

// AddressLength is the size of an Ethereum address in bytes.
const AddressLength = 20

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var curveOrder = btcec.S256().Params().N

// Address is a 20-byte Ethereum account address.
type Address [AddressLength]byte

// Hex returns the lowercase 0x-prefixed form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Checksum returns the EIP-55 mixed-case form.
func (a Address) Checksum() string {
	lower := hex.EncodeToString(a[:])
	hash := keccak256([]byte(lower))

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue
		}
		nibble := hash[i/2] >> 4
		if i%2 == 1 {
			nibble = hash[i/2] & 0x0f
		}
		if nibble >= 8 {
			out[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(out)
}

func (a Address) String() string {
	return a.Hex()
}

// IsValidAddress reports whether s is 0x followed by exactly 40 hex characters.
// The EIP-55 checksum is not enforced.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ParseAddress parses a 0x-prefixed address in any letter case.
func ParseAddress(s string) (Address, error) {
	var a Address
	if !IsValidAddress(s) {
		return a, fmt.Errorf("%w: invalid address %q", models.ErrValidation, s)
	}
	if _, err := hex.Decode(a[:], []byte(s[2:])); err != nil {
		return a, fmt.Errorf("%w: invalid address %q", models.ErrValidation, s)
	}
	return a, nil
}

// AddressFromPublicKey hashes a 64-byte uncompressed public key (X || Y) into
// an address. A 65-byte key with the 0x04 marker is accepted as well.
func AddressFromPublicKey(pub []byte) (Address, error) {
	var a Address
	if len(pub) == 65 && pub[0] == 0x04 {
		pub = pub[1:]
	}
	if len(pub) != 64 {
		return a, fmt.Errorf("%w: expected 64-byte public key, got %d bytes", models.ErrEncoding, len(pub))
	}
	hash := keccak256(pub)
	copy(a[:], hash[12:])
	return a, nil
}

// AddressFromPrivateKey derives the address controlled by privateKey.
func AddressFromPrivateKey(privateKey []byte) (Address, error) {
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return Address{}, err
	}
	defer priv.Zero()
	return AddressFromPublicKey(priv.PubKey().SerializeUncompressed())
}

// ETHGenerator generates Ethereum addresses using BIP-44 derivation.
// Derivation path: m/44'/60'/0'/0/{index}
type ETHGenerator struct {
	pathTemplate string
}

// NewETHGenerator returns a new Ethereum address generator.
func NewETHGenerator() *ETHGenerator {
	return &ETHGenerator{pathTemplate: DefaultPathTemplate}
}

// GenerateFromSeed derives an Ethereum address from a BIP-39 seed.
func (g *ETHGenerator) GenerateFromSeed(seed []byte, index uint32) (*models.DerivedAddress, error) {
	return g.GenerateFromPath(seed, fmt.Sprintf(g.pathTemplate, index))
}

// GenerateFromPath derives the address at an arbitrary BIP-32 path.
func (g *ETHGenerator) GenerateFromPath(seed []byte, path string) (*models.DerivedAddress, error) {
	key, err := hd.DerivePath(seed, path)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer key.Zero()

	priv, err := parsePrivateKey(key.Key[:])
	if err != nil {
		return nil, err
	}
	defer priv.Zero()
	pubBytes := priv.PubKey().SerializeUncompressed()

	// Ethereum address = last 20 bytes of Keccak256(publicKey)
	address, err := AddressFromPublicKey(pubBytes[1:]) // skip 0x04 prefix
	if err != nil {
		return nil, err
	}

	return &models.DerivedAddress{
		Address:        address.Hex(),
		DerivationPath: path,
		PublicKey:      hex.EncodeToString(pubBytes),
	}, nil
}

// --- helpers ---

// parsePrivateKey checks 0 < key < n before handing the scalar to btcec,
// which would otherwise reduce it silently.
func parsePrivateKey(privateKey []byte) (*btcec.PrivateKey, error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", models.ErrSigning, len(privateKey))
	}
	k := new(big.Int).SetBytes(privateKey)
	if k.Sign() == 0 || k.Cmp(curveOrder) >= 0 {
		return nil, fmt.Errorf("%w: private key out of range", models.ErrSigning)
	}
	priv, _ := btcec.PrivKeyFromBytes(privateKey)
	return priv, nil
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
