package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Uint128 is a fixed 128-bit unsigned integer, represented as two uint64
// limbs. RuneId components and rune amounts are modeled as Uint128 rather
// than *big.Int so that a RuneId remains a comparable value usable as a
// map key, and so that the on-disk wire format (16 bytes little-endian,
// see the KV store contract in spec.md §6) is a direct field layout
// rather than a variable-length encoding.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// ZeroU128 is the additive identity.
var ZeroU128 = Uint128{}

// U128FromUint64 builds a Uint128 from a uint64.
func U128FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// IsZero reports whether v is the zero value.
func (v Uint128) IsZero() bool { return v.Hi == 0 && v.Lo == 0 }

// Cmp returns -1, 0 or 1 comparing v to w.
func (v Uint128) Cmp(w Uint128) int {
	switch {
	case v.Hi < w.Hi:
		return -1
	case v.Hi > w.Hi:
		return 1
	case v.Lo < w.Lo:
		return -1
	case v.Lo > w.Lo:
		return 1
	default:
		return 0
	}
}

// Add returns v+w and whether the addition overflowed 128 bits.
func (v Uint128) Add(w Uint128) (sum Uint128, overflow bool) {
	lo, carry := bitsAdd64(v.Lo, w.Lo, 0)
	hi, carry2 := bitsAdd64(v.Hi, w.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}, carry2 != 0
}

// bitsAdd64 adds a, b and an incoming carry, returning the sum and outgoing carry.
func bitsAdd64(a, b, carry uint64) (sum, carryOut uint64) {
	s := a + b
	c1 := uint64(0)
	if s < a {
		c1 = 1
	}
	s2 := s + carry
	c2 := uint64(0)
	if s2 < s {
		c2 = 1
	}
	return s2, c1 + c2
}

// Sub returns v-w and whether the subtraction underflowed (v < w).
func (v Uint128) Sub(w Uint128) (diff Uint128, underflow bool) {
	if v.Cmp(w) < 0 {
		return Uint128{}, true
	}
	lo := v.Lo - w.Lo
	borrow := uint64(0)
	if v.Lo < w.Lo {
		borrow = 1
	}
	hi := v.Hi - w.Hi - borrow
	return Uint128{Hi: hi, Lo: lo}, false
}

// MustAdd adds w to v, panicking on overflow. Overflow is a fatal
// programming error per spec.md §9 — well-formed chain data never
// produces amounts summing past 2^128.
func (v Uint128) MustAdd(w Uint128) Uint128 {
	sum, overflow := v.Add(w)
	if overflow {
		panic(fmt.Sprintf("protorunes: uint128 overflow: %s + %s", v, w))
	}
	return sum
}

// Min returns the smaller of v and w.
func (v Uint128) Min(w Uint128) Uint128 {
	if v.Cmp(w) <= 0 {
		return v
	}
	return w
}

// DivModUint64 divides v by a small uint64 divisor, returning quotient and
// remainder. Used only by the spread-mode split (§4.4), where the divisor
// is a bitcoin output count and therefore always fits a uint64.
func (v Uint128) DivModUint64(d uint64) (q Uint128, r uint64) {
	if d == 0 {
		panic("protorunes: division by zero")
	}
	num := v.ToBig()
	den := new(big.Int).SetUint64(d)
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	return u128FromBig(quo), rem.Uint64()
}

// ToBig converts v to a *big.Int.
func (v Uint128) ToBig() *big.Int {
	hi := new(big.Int).SetUint64(v.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(v.Lo)
	return hi.Add(hi, lo)
}

// u128FromBig converts a non-negative *big.Int known to fit in 128 bits.
func u128FromBig(b *big.Int) Uint128 {
	if b.Sign() < 0 {
		panic("protorunes: negative value cannot become Uint128")
	}
	if b.BitLen() > 128 {
		panic("protorunes: uint128 overflow converting from big.Int")
	}
	bz := make([]byte, 16)
	b.FillBytes(bz[16-((b.BitLen()+7)/8):])
	return Uint128{
		Hi: binary.BigEndian.Uint64(bz[0:8]),
		Lo: binary.BigEndian.Uint64(bz[8:16]),
	}
}

// U128FromBig converts a *big.Int to Uint128. The caller is responsible for
// ensuring the value is representable; a value that overflows panics, per
// the fatal-overflow discipline of spec.md §9.
func U128FromBig(b *big.Int) Uint128 { return u128FromBig(b) }

// U128FromBigChecked converts a non-negative *big.Int to Uint128, returning
// ok=false instead of panicking if it exceeds 128 bits. Used when decoding
// untrusted varint streams, where an oversized integer is attacker data
// rather than a programming error.
func U128FromBigChecked(b *big.Int) (v Uint128, ok bool) {
	if b.Sign() < 0 || b.BitLen() > 128 {
		return Uint128{}, false
	}
	return u128FromBig(b), true
}

// Bytes returns the canonical 16-byte little-endian encoding (spec.md §3:
// "serializes to 32 bytes little-endian" for a RuneId pair; each u128
// component individually is 16 bytes LE).
func (v Uint128) Bytes() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], v.Lo)
	binary.LittleEndian.PutUint64(out[8:16], v.Hi)
	return out
}

// U128FromBytes decodes the 16-byte little-endian encoding produced by Bytes.
func U128FromBytes(b []byte) Uint128 {
	var out Uint128
	out.Lo = binary.LittleEndian.Uint64(b[0:8])
	out.Hi = binary.LittleEndian.Uint64(b[8:16])
	return out
}

func (v Uint128) String() string { return v.ToBig().String() }
