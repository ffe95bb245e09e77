// Package kernel provides the precision-explicit CPU compute kernels for
// set-function evaluation: Euclidean norms, pairwise distances, and
// min-distance row scans in float32 and float64.
//
// Kernels come in two widths because the arithmetic width is part of the
// result contract: a float32 evaluation must round like float32 end to end,
// not compute in float64 and truncate.
package kernel

import "math"

var (
	squaredL2F32Impl = squaredL2F32Generic
	squaredL2F64Impl = squaredL2F64Generic
)

// Hosts with wide vector units get the unrolled kernels: four independent
// accumulator chains keep the lanes busy instead of serializing on one sum.
func init() {
	switch Detect() {
	case AVX512, AVX2, NEON:
		squaredL2F32Impl = squaredL2F32Unroll4
		squaredL2F64Impl = squaredL2F64Unroll4
	}
}

// SquaredL2F32 returns the squared Euclidean distance between a and b in
// float32 arithmetic.
//
// SAFETY: assumes len(a) == len(b); callers must validate dimensions.
func SquaredL2F32(a, b []float32) float32 {
	return squaredL2F32Impl(a, b)
}

// SquaredL2F64 returns the squared Euclidean distance between a and b in
// float64 arithmetic.
//
// SAFETY: assumes len(a) == len(b); callers must validate dimensions.
func SquaredL2F64(a, b []float64) float64 {
	return squaredL2F64Impl(a, b)
}

func squaredL2F32Generic(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func squaredL2F64Generic(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func squaredL2F32Unroll4(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	sum := (s0 + s1) + (s2 + s3)
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func squaredL2F64Unroll4(a, b []float64) float64 {
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	sum := (s0 + s1) + (s2 + s3)
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NormF32 returns the Euclidean norm of v in float32 arithmetic.
func NormF32(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// NormF64 returns the Euclidean norm of v in float64 arithmetic.
func NormF64(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// MinDistF32 returns the minimum Euclidean distance from v to any row of
// the flattened row-major matrix set, computed in float32. upper seeds the
// running minimum, so the result never exceeds it.
//
// SAFETY: assumes len(v) == dim and len(set) is a multiple of dim.
func MinDistF32(v []float32, set []float32, dim int, upper float32) float32 {
	minDist := upper
	for off := 0; off+dim <= len(set); off += dim {
		d := float32(math.Sqrt(float64(squaredL2F32Impl(v, set[off:off+dim]))))
		if d < minDist {
			minDist = d
		}
	}
	return minDist
}

// MinDistF64 is the float64 counterpart of MinDistF32.
func MinDistF64(v []float64, set []float64, dim int, upper float64) float64 {
	minDist := upper
	for off := 0; off+dim <= len(set); off += dim {
		d := math.Sqrt(squaredL2F64Impl(v, set[off:off+dim]))
		if d < minDist {
			minDist = d
		}
	}
	return minDist
}

// CastF32 converts float64 host data to a freshly allocated float32 slice.
func CastF32(src []float64) []float32 {
	dst := make([]float32, len(src))
	for i, x := range src {
		dst[i] = float32(x)
	}
	return dst
}
