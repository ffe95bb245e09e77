package exemgo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/exemgo/matrix"
)

// newGPUFunction constructs a GPU-backed instance or skips the test when
// no compute device is available, e.g. in CI.
func newGPUFunction(t *testing.T, ground *matrix.Dense, opts ...Option) *ExemplarClustering {
	t.Helper()

	f, err := NewExemplarClustering(ground, append(opts, WithDevice(DeviceGPU))...)
	if err != nil {
		var devErr *ErrDeviceUnavailable
		if errors.As(err, &devErr) {
			t.Skipf("no GPU device: %v", err)
		}
		var cfgErr *ErrUnsupportedConfiguration
		if errors.As(err, &cfgErr) {
			t.Skipf("unsupported on this adapter: %v", err)
		}
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExemplarGPU_GoldenCorners(t *testing.T) {
	f := newGPUFunction(t, cornerGround(t))

	v, err := f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/4, v, 1e-6)

	v, err = f.Evaluate(cornerGround(t))
	require.NoError(t, err)
	assert.InDelta(t, (2+math.Sqrt2)/4, v, 1e-6)

	v, err = f.Evaluate(matrix.NewDense(0, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestExemplarGPU_MatchesCPU(t *testing.T) {
	ground := randomGround(t, 300, 16, 10)

	for _, tc := range []struct {
		precision Precision
		tol       float64
	}{
		{PrecisionSingle, 1e-4},
		{PrecisionDouble, 1e-9},
	} {
		t.Run(tc.precision.String(), func(t *testing.T) {
			gpu := newGPUFunction(t, ground, WithPrecision(tc.precision))
			cpu, err := NewExemplarClustering(ground, WithPrecision(tc.precision))
			require.NoError(t, err)
			defer cpu.Close()

			s := mustRows(t, ground.Row(0), ground.Row(123), ground.Row(299))

			got, err := gpu.Evaluate(s)
			require.NoError(t, err)
			want, err := cpu.Evaluate(s)
			require.NoError(t, err)

			assert.InEpsilon(t, want, got, tc.tol)
		})
	}
}

func TestExemplarGPU_Half(t *testing.T) {
	f := newGPUFunction(t, cornerGround(t), WithPrecision(PrecisionHalf))

	v, err := f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)
	// Half keeps about three decimal digits.
	assert.InDelta(t, math.Sqrt2/4, v, 1e-3)
}

func TestExemplarGPU_Batch(t *testing.T) {
	ground := randomGround(t, 64, 8, 11)
	f := newGPUFunction(t, ground, WithPrecision(PrecisionSingle))

	sets := []*matrix.Dense{
		matrix.NewDense(0, 8),
		mustRows(t, ground.Row(1)),
		mustRows(t, ground.Row(2), ground.Row(3)),
	}

	batch, err := f.EvaluateBatch(sets)
	require.NoError(t, err)
	require.Len(t, batch, len(sets))

	for i, s := range sets {
		single, err := f.Evaluate(s)
		require.NoError(t, err)
		assert.InDelta(t, single, batch[i], 1e-6, "set %d", i)
	}
}

func TestExemplarGPU_ConcurrentEvaluate(t *testing.T) {
	ground := randomGround(t, 64, 8, 12)
	f := newGPUFunction(t, ground, WithPrecision(PrecisionSingle))

	s := mustRows(t, ground.Row(5), ground.Row(6))
	want, err := f.Evaluate(s)
	require.NoError(t, err)

	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			got, err := f.Evaluate(s)
			if err == nil && got != want {
				err = errors.New("concurrent evaluation diverged")
			}
			errCh <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errCh)
	}
}
