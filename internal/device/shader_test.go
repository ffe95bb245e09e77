package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoverageShader_F32(t *testing.T) {
	src := coverageShader(ScalarF32, 1000, 50)

	assert.Contains(t, src, "const N: u32 = 1000u;")
	assert.Contains(t, src, "const D: u32 = 50u;")
	assert.Contains(t, src, "array<f32>")
	assert.Contains(t, src, "arrayLength(&cand)")
	assert.Contains(t, src, "@workgroup_size(256)")
	assert.NotContains(t, src, "enable f16;")
	assert.NotContains(t, src, "f16>")
}

func TestCoverageShader_F16(t *testing.T) {
	src := coverageShader(ScalarF16, 256, 8)

	assert.True(t, strings.HasPrefix(src, "enable f16;"), "f16 shaders must start with the enable directive")
	assert.Contains(t, src, "array<f16>")
	assert.NotContains(t, src, "array<f32>")
}

func TestCoverageShader_DF64(t *testing.T) {
	src := coverageShader(ScalarF64, 4096, 128)

	assert.Contains(t, src, "array<vec2<f32>>")
	assert.Contains(t, src, "fn two_sum")
	assert.Contains(t, src, "fn ds_sqrt")
	assert.Contains(t, src, "ds_lt(dist, mind)")
	assert.Contains(t, src, "const N: u32 = 4096u;")
	assert.NotContains(t, src, "enable f16;")
}

func TestSumShader(t *testing.T) {
	tests := []struct {
		name   string
		scalar Scalar
		want   string
	}{
		{"F16", ScalarF16, "array<f16>"},
		{"F32", ScalarF32, "array<f32>"},
		{"DF64", ScalarF64, "array<vec2<f32>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := sumShader(tt.scalar)
			assert.Contains(t, src, tt.want)
			assert.Contains(t, src, "result[0] = shared_sum[0];")
		})
	}
}

func TestShader_BalancedBraces(t *testing.T) {
	for _, s := range []Scalar{ScalarF16, ScalarF32, ScalarF64} {
		for _, src := range []string{coverageShader(s, 100, 3), sumShader(s)} {
			assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"), "scalar %v", s)
			assert.Equal(t, strings.Count(src, "("), strings.Count(src, ")"), "scalar %v", s)
		}
	}
}
