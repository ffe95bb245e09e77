package device

import (
	"math"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/hupe1980/exemgo/internal/f16"
)

// Scalar selects the device-side numeric representation.
//
// F16 and F32 map to native WGSL scalar types. F64 has no WGSL equivalent;
// it is carried as a double-single pair (vec2<f32> of hi and lo parts) with
// compensated arithmetic in the shader.
type Scalar uint8

const (
	ScalarF16 Scalar = iota
	ScalarF32
	ScalarF64
)

func (s Scalar) String() string {
	switch s {
	case ScalarF16:
		return "f16"
	case ScalarF32:
		return "f32"
	case ScalarF64:
		return "f64"
	default:
		return "unknown"
	}
}

// elemBytes returns the device storage size of one scalar element.
func (s Scalar) elemBytes() int {
	switch s {
	case ScalarF16:
		return 2
	case ScalarF64:
		return 8 // vec2<f32>
	default:
		return 4
	}
}

// encode converts float64 host values into the device byte layout.
func (s Scalar) encode(src []float64) []byte {
	switch s {
	case ScalarF16:
		half := f16.EncodeVec(src)
		if len(half)%2 != 0 {
			// Storage bindings are 4-byte sized; a zero pad element is the
			// origin, which never beats the seeded reference distance.
			half = append(half, 0)
		}
		return wgpu.ToBytes(half)
	case ScalarF64:
		pairs := make([]float32, 2*len(src))
		for i, x := range src {
			pairs[2*i], pairs[2*i+1] = splitDouble(x)
		}
		return wgpu.ToBytes(pairs)
	default:
		out := make([]float32, len(src))
		for i, x := range src {
			out[i] = float32(x)
		}
		return wgpu.ToBytes(out)
	}
}

// decodeValue reads the first scalar from raw device bytes.
func (s Scalar) decodeValue(raw []byte) float64 {
	switch s {
	case ScalarF16:
		bits := wgpu.FromBytes[uint16](raw)
		return float64(f16.ToFloat32(f16.Bits(bits[0])))
	case ScalarF64:
		pair := wgpu.FromBytes[float32](raw)
		return float64(pair[0]) + float64(pair[1])
	default:
		vals := wgpu.FromBytes[float32](raw)
		return float64(vals[0])
	}
}

// resultBytes is the size of the result/staging buffers. WebGPU buffer
// copies are 4-byte aligned, so the f16 result is padded.
func (s Scalar) resultBytes() uint64 {
	n := s.elemBytes()
	if n < 4 {
		n = 4
	}
	return uint64(n)
}

// splitDouble decomposes x into hi and lo float32 parts with
// x == hi + lo exactly when x is in float32 exponent range.
func splitDouble(x float64) (hi, lo float32) {
	hi = float32(x)
	if math.IsInf(float64(hi), 0) {
		return hi, 0
	}
	return hi, float32(x - float64(hi))
}
