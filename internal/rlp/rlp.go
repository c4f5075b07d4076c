// Package rlp implements the encoding half of Ethereum's Recursive Length
// Prefix serialization. Decoding is not needed: everything inbound arrives as
// JSON over RPC.
package rlp

import (
	"encoding/binary"
	"math/big"
)

const (
	shortStringOffset = 0x80
	longStringOffset  = 0xb7
	shortListOffset   = 0xc0
	longListOffset    = 0xf7
	maxShortLength    = 55
)

// Item is a value that can be RLP-encoded.
type Item interface {
	encodeRLP() []byte
}

// Bytes is a byte string item.
type Bytes []byte

func (b Bytes) encodeRLP() []byte {
	return EncodeItem(b)
}

// List is a list of items.
type List []Item

func (l List) encodeRLP() []byte {
	return EncodeList(l...)
}

// Uint returns the minimal big-endian form of v. Zero is the empty string.
func Uint(v uint64) Bytes {
	return Bytes(minimalBigEndian(v))
}

// BigInt returns the minimal big-endian form of v. Nil and zero are the empty
// string. Negative values have no RLP representation and are encoded by
// magnitude; callers reject them before they get here.
func BigInt(v *big.Int) Bytes {
	if v == nil || v.Sign() == 0 {
		return Bytes{}
	}
	return Bytes(new(big.Int).Abs(v).Bytes())
}

// Encode returns the encoding of item.
func Encode(item Item) []byte {
	return item.encodeRLP()
}

// EncodeItem encodes b as an RLP string.
func EncodeItem(b []byte) []byte {
	if len(b) == 1 && b[0] < shortStringOffset {
		return []byte{b[0]}
	}
	return withPrefix(shortStringOffset, longStringOffset, b)
}

// EncodeList encodes items as an RLP list.
func EncodeList(items ...Item) []byte {
	var payload []byte
	for _, item := range items {
		payload = append(payload, item.encodeRLP()...)
	}
	return withPrefix(shortListOffset, longListOffset, payload)
}

func withPrefix(shortOffset, longOffset byte, payload []byte) []byte {
	if len(payload) <= maxShortLength {
		out := make([]byte, 0, 1+len(payload))
		out = append(out, shortOffset+byte(len(payload)))
		return append(out, payload...)
	}
	lenBytes := minimalBigEndian(uint64(len(payload)))
	out := make([]byte, 0, 1+len(lenBytes)+len(payload))
	out = append(out, longOffset+byte(len(lenBytes)))
	out = append(out, lenBytes...)
	return append(out, payload...)
}

func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return []byte{}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for buf[i] == 0 {
		i++
	}
	return append([]byte(nil), buf[i:]...)
}
