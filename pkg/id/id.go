// Package id implements the 160-bit Kademlia node/key identifier.
package id

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Size is the length of an Id in bytes (160 bits).
const Size = 20

// Bits is the length of an Id in bits, and therefore the number of
// possible XOR-distance buckets (distance is reported in [0, Bits]).
const Bits = Size * 8

// HexLen is the length of the canonical hex encoding: "0x" plus two
// hex characters per byte.
const HexLen = 2 + Size*2

// Id is an opaque 160-bit identifier. The zero value is the all-zero id.
type Id [Size]byte

// Random returns an Id drawn uniformly from the 2^160 id space.
func Random() (Id, error) {
	var out Id
	if _, err := rand.Read(out[:]); err != nil {
		return Id{}, fmt.Errorf("id: generate random id: %w", err)
	}
	return out, nil
}

// MustRandom is Random, panicking on entropy-source failure. Only
// appropriate at process start where there is no sane recovery.
func MustRandom() Id {
	out, err := Random()
	if err != nil {
		panic(err)
	}
	return out
}

// Equal reports whether two ids are identical.
func (x Id) Equal(y Id) bool {
	return x == y
}

// Distance returns the position, counted from the most significant bit,
// of the first bit at which x and y differ. Identical ids return Bits
// (160); ids differing only in the least significant bit return Bits-1.
func (x Id) Distance(y Id) int {
	var xor Id
	for i := range xor {
		xor[i] = x[i] ^ y[i]
	}
	return xor.LeadingZeros()
}

// LeadingZeros returns the number of leading zero bits in x, in [0, Bits].
func (x Id) LeadingZeros() int {
	for i := 0; i < Size; i++ {
		if x[i] == 0 {
			continue
		}
		b := x[i]
		for j := 0; j < 8; j++ {
			if (b>>uint(7-j))&0x1 != 0 {
				return i*8 + j
			}
		}
	}
	return Bits
}

// Hex encodes x as "0x" followed by 40 lowercase hex characters,
// big-endian byte order.
func (x Id) Hex() string {
	return hexutil.Encode(x[:])
}

// String implements fmt.Stringer as the hex encoding, matching the
// logging conventions the rest of this module uses for ids.
func (x Id) String() string {
	return x.Hex()
}

// Parse is the inverse of Hex. It rejects any input that is not exactly
// HexLen characters of "0x"-prefixed hex.
func Parse(s string) (Id, error) {
	if len(s) != HexLen {
		return Id{}, fmt.Errorf("id: parse %q: want %d characters, got %d", s, HexLen, len(s))
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Id{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if len(raw) != Size {
		return Id{}, fmt.Errorf("id: parse %q: decoded %d bytes, want %d", s, len(raw), Size)
	}
	var out Id
	copy(out[:], raw)
	return out, nil
}
