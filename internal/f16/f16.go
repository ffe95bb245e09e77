// Package f16 implements IEEE-754 binary16 (half precision) conversion.
//
// The evaluation engine stores and computes half-precision data on the GPU
// only; this package provides the host-side codec for uploading operands,
// decoding results, and emulating binary16 rounding in tests.
package f16

import (
	"math"
)

// Bits is the raw IEEE-754 binary16 bit-pattern:
// 1 sign bit, 5 exponent bits (bias 15), 10 fraction bits.
type Bits uint16

const (
	signMask Bits = 0x8000
	expMask  Bits = 0x7C00
	fracMask Bits = 0x03FF
)

// FromFloat32 converts f to a binary16 bit-pattern using
// round-to-nearest, ties-to-even.
func FromFloat32(f float32) Bits {
	b := math.Float32bits(f)
	sign := Bits((b >> 16) & 0x8000)
	abs := b & 0x7FFFFFFF

	switch {
	case abs >= 0x7F800000:
		// Inf or NaN.
		if abs == 0x7F800000 {
			return sign | expMask
		}
		payload := Bits(abs>>13) & fracMask
		return sign | expMask | 0x0200 | payload

	case abs >= 0x477FF000:
		// Rounds to 2^16 or beyond: overflow to infinity.
		return sign | expMask

	case abs >= 0x38800000:
		// Normal half range (>= 2^-14). Re-bias the exponent and round
		// away the low 13 fraction bits. A mantissa carry propagates
		// cleanly into the exponent field by construction.
		v := abs - 0x38000000
		h := v >> 13
		if rem := v & 0x1FFF; rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
			h++
		}
		return sign | Bits(h)

	case abs >= 0x33000000:
		// Subnormal half range. Denormalize with the implicit bit made
		// explicit, rounding to nearest-even on the shifted-out bits.
		exp := int(abs >> 23)
		mant := (abs & 0x007FFFFF) | 0x00800000
		shift := uint(126 - exp)
		m := mant >> shift
		rem := mant & (1<<shift - 1)
		half := uint32(1) << (shift - 1)
		if rem > half || (rem == half && m&1 == 1) {
			m++
		}
		return sign | Bits(m)

	default:
		// Below half the smallest subnormal: underflow to signed zero.
		return sign
	}
}

// ToFloat32 converts a binary16 bit-pattern to float32. The conversion is
// exact; every binary16 value is representable in binary32.
func ToFloat32(h Bits) float32 {
	sign := uint32(h&signMask) << 16
	exp := uint32(h&expMask) >> 10
	frac := uint32(h & fracMask)

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: value is frac * 2^-24.
		f := float32(frac) * float32(math.Ldexp(1, -24))
		return math.Float32frombits(sign | math.Float32bits(f))
	case 0x1F:
		if frac == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7F800000 | (frac << 13))
	default:
		f32Exp := (exp - 15 + 127) << 23
		return math.Float32frombits(sign | f32Exp | (frac << 13))
	}
}

// Round quantizes x through binary16 and back. It is the reference for
// "arithmetic at half precision" in host-side checks.
func Round(x float64) float64 {
	return float64(ToFloat32(FromFloat32(float32(x))))
}

// EncodeVec converts float64 host data to raw binary16 bit-patterns for
// device upload.
func EncodeVec(src []float64) []uint16 {
	dst := make([]uint16, len(src))
	for i, x := range src {
		dst[i] = uint16(FromFloat32(float32(x)))
	}
	return dst
}

// DecodeVec converts raw binary16 bit-patterns read back from a device
// into float64 host values.
func DecodeVec(src []uint16) []float64 {
	dst := make([]float64, len(src))
	for i, b := range src {
		dst[i] = float64(ToFloat32(Bits(b)))
	}
	return dst
}
