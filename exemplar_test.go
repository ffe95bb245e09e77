package exemgo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/exemgo/matrix"
)

// cornerGround is the unit-square fixture: the four corners of [0,1]².
// Its values are exact in every precision, which keeps the golden
// assertions tight.
func cornerGround(t *testing.T) *matrix.Dense {
	t.Helper()
	m, err := matrix.FromRows([]matrix.Vector{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
	})
	require.NoError(t, err)
	return m
}

func randomGround(t *testing.T, n, dim int, seed int64) *matrix.Dense {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, n*dim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	m, err := matrix.FromData(n, dim, data)
	require.NoError(t, err)
	return m
}

func mustRows(t *testing.T, rows ...matrix.Vector) *matrix.Dense {
	t.Helper()
	m, err := matrix.FromRows(rows)
	require.NoError(t, err)
	return m
}

func TestExemplar_GoldenCorners(t *testing.T) {
	for _, p := range []Precision{PrecisionSingle, PrecisionDouble} {
		t.Run(p.String(), func(t *testing.T) {
			f, err := NewExemplarClustering(cornerGround(t), WithPrecision(p))
			require.NoError(t, err)
			defer f.Close()

			tol := 1e-12
			if p == PrecisionSingle {
				tol = 1e-6
			}

			// The origin covers nothing beyond the reference.
			v, err := f.Evaluate(mustRows(t, matrix.Vector{0, 0}))
			require.NoError(t, err)
			assert.InDelta(t, 0, v, tol)

			// The far corner covers only itself.
			v, err = f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
			require.NoError(t, err)
			assert.InDelta(t, math.Sqrt2/4, v, tol)

			// The full ground set covers every point exactly.
			v, err = f.Evaluate(cornerGround(t))
			require.NoError(t, err)
			assert.InDelta(t, (2+math.Sqrt2)/4, v, tol)
		})
	}
}

func TestExemplar_EmptySetIsZero(t *testing.T) {
	f, err := NewExemplarClustering(cornerGround(t))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.Evaluate(matrix.NewDense(0, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	// An empty set with a foreign column count is still the empty set.
	v, err = f.Evaluate(matrix.NewDense(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestExemplar_Monotonicity(t *testing.T) {
	ground := randomGround(t, 48, 6, 1)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	idx := NewIndexSet()
	prev := 0.0
	for i := 0; i < 12; i++ {
		idx.Add(i * 3)
		v, err := f.EvaluateSubset(idx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v+1e-12, prev, "step %d", i)
		prev = v
	}
}

func TestExemplar_DiminishingReturns(t *testing.T) {
	ground := randomGround(t, 48, 6, 2)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	elem := ground.Row(47).Clone()

	prevGain := math.Inf(1)
	for k := 0; k <= 10; k++ {
		rows := make([]matrix.Vector, k)
		for i := range rows {
			rows[i] = ground.Row(i)
		}
		s, err := matrix.FromRows(rows)
		if k == 0 {
			s = matrix.NewDense(0, ground.Cols())
			err = nil
		}
		require.NoError(t, err)

		gain, err := f.MarginalGain(s, elem)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, gain, -1e-12, "gain must be non-negative at |S|=%d", k)
		assert.LessOrEqual(t, gain, prevGain+1e-12, "gain must not grow with |S|=%d", k)
		prevGain = gain
	}
}

func TestExemplar_MarginalGainMatchesDerived(t *testing.T) {
	ground := randomGround(t, 32, 4, 3)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	s := mustRows(t, ground.Row(1), ground.Row(9))
	elem := ground.Row(20).Clone()

	fast, err := f.MarginalGain(s, elem)
	require.NoError(t, err)
	slow, err := marginalGain(f, s, elem)
	require.NoError(t, err)

	assert.InDelta(t, slow, fast, 1e-12)
}

func TestExemplar_BatchMatchesSingle(t *testing.T) {
	ground := randomGround(t, 40, 5, 4)

	for _, p := range []Precision{PrecisionSingle, PrecisionDouble} {
		t.Run(p.String(), func(t *testing.T) {
			f, err := NewExemplarClustering(ground, WithPrecision(p))
			require.NoError(t, err)
			defer f.Close()

			sets := []*matrix.Dense{
				matrix.NewDense(0, 5),
				mustRows(t, ground.Row(0)),
				mustRows(t, ground.Row(3), ground.Row(7)),
				mustRows(t, ground.Row(1), ground.Row(2), ground.Row(30)),
			}

			batch, err := f.EvaluateBatch(sets)
			require.NoError(t, err)
			require.Len(t, batch, len(sets))

			for i, s := range sets {
				single, err := f.Evaluate(s)
				require.NoError(t, err)
				// Chunked and sequential reductions may differ by
				// rounding only.
				assert.InDelta(t, single, batch[i], 1e-5, "set %d", i)
			}
		})
	}
}

func TestExemplar_MarginalGainBatch(t *testing.T) {
	ground := randomGround(t, 24, 4, 5)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	sets := []*matrix.Dense{
		matrix.NewDense(0, 4),
		mustRows(t, ground.Row(0)),
		mustRows(t, ground.Row(0), ground.Row(11)),
	}
	elem := ground.Row(17).Clone()

	gains, err := f.MarginalGainBatch(sets, elem)
	require.NoError(t, err)
	require.Len(t, gains, len(sets))

	for i, s := range sets {
		want, err := f.MarginalGain(s, elem)
		require.NoError(t, err)
		assert.InDelta(t, want, gains[i], 1e-12, "set %d", i)
	}
}

func TestExemplar_MarginalGainMulti(t *testing.T) {
	ground := randomGround(t, 24, 4, 6)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	s := mustRows(t, ground.Row(2))
	elems := []matrix.Vector{ground.Row(5), ground.Row(6), ground.Row(7)}

	gains, err := f.MarginalGainMulti(s, elems)
	require.NoError(t, err)
	require.Len(t, gains, len(elems))

	for i, e := range elems {
		want, err := f.MarginalGain(s, e)
		require.NoError(t, err)
		assert.InDelta(t, want, gains[i], 1e-12, "elem %d", i)
	}
}

func TestExemplar_PrecisionAgreement(t *testing.T) {
	ground := randomGround(t, 64, 8, 7)

	f32, err := NewExemplarClustering(ground, WithPrecision(PrecisionSingle))
	require.NoError(t, err)
	defer f32.Close()
	f64, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f64.Close()

	s := mustRows(t, ground.Row(10), ground.Row(33), ground.Row(60))

	v32, err := f32.Evaluate(s)
	require.NoError(t, err)
	v64, err := f64.Evaluate(s)
	require.NoError(t, err)

	require.Greater(t, v64, 0.0)
	assert.InEpsilon(t, v64, v32, 1e-4)
}

func TestExemplar_WorkerCountInvariance(t *testing.T) {
	ground := randomGround(t, 100, 4, 8)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	s := mustRows(t, ground.Row(0), ground.Row(50))

	var baseline float64
	for i, workers := range []int{1, 2, 3, 8, 100} {
		f.SetWorkerCount(workers)
		v, err := f.Evaluate(s)
		require.NoError(t, err)
		if i == 0 {
			baseline = v
			continue
		}
		assert.InDelta(t, baseline, v, 1e-12, "workers=%d", workers)
	}
}

func TestExemplar_DimensionMismatch(t *testing.T) {
	f, err := NewExemplarClustering(cornerGround(t))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Evaluate(mustRows(t, matrix.Vector{1, 2, 3}))
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	_, err = f.MarginalGain(matrix.NewDense(0, 2), matrix.Vector{1})
	require.ErrorAs(t, err, &dimErr)

	_, err = f.EvaluateBatch([]*matrix.Dense{
		mustRows(t, matrix.Vector{1, 2}),
		mustRows(t, matrix.Vector{1}),
	})
	require.ErrorAs(t, err, &dimErr)
}

func TestExemplar_HalfOnCPUUnsupported(t *testing.T) {
	_, err := NewExemplarClustering(cornerGround(t), WithPrecision(PrecisionHalf))
	var cfgErr *ErrUnsupportedConfiguration
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, DeviceCPU, cfgErr.Device)
	assert.Equal(t, PrecisionHalf, cfgErr.Precision)
}

func TestExemplar_EmptyGroundSet(t *testing.T) {
	_, err := NewExemplarClustering(matrix.NewDense(0, 3))
	require.ErrorIs(t, err, ErrEmptyGroundSet)

	_, err = NewExemplarClustering(matrix.NewDense(3, 0))
	require.ErrorIs(t, err, ErrEmptyGroundSet)
}

func TestExemplar_MemoryLimit(t *testing.T) {
	_, err := NewExemplarClustering(cornerGround(t), WithMemoryLimit(16))
	var resErr *ErrResourceExhausted
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, int64(16), resErr.Limit)
	assert.Greater(t, resErr.Requested, resErr.Limit)
}

func TestExemplar_MemoryLimitPerCall(t *testing.T) {
	// Budget covers the construction footprint with a little headroom,
	// but not the working copy of a large candidate set.
	f, err := NewExemplarClustering(cornerGround(t), WithMemoryLimit(512))
	require.NoError(t, err)
	defer f.Close()

	baseline := f.MemoryUsed()

	_, err = f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)
	assert.Equal(t, baseline, f.MemoryUsed(), "transient claim must be released")

	big := matrix.NewDense(4096, 2)

	var resErr *ErrResourceExhausted
	_, err = f.Evaluate(big)
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, baseline, f.MemoryUsed())

	_, err = f.EvaluateBatch([]*matrix.Dense{big})
	require.ErrorAs(t, err, &resErr)

	_, err = f.MarginalGain(big, matrix.Vector{1, 0})
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, baseline, f.MemoryUsed())
}

func TestExemplar_MemoryAccounting(t *testing.T) {
	f, err := NewExemplarClustering(cornerGround(t), WithMemoryLimit(1<<20))
	require.NoError(t, err)

	assert.Greater(t, f.MemoryUsed(), int64(0))
	require.NoError(t, f.Close())
	assert.Equal(t, int64(0), f.MemoryUsed())
}

func TestExemplar_Closed(t *testing.T) {
	f, err := NewExemplarClustering(cornerGround(t))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Evaluate(cornerGround(t))
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.EvaluateBatch([]*matrix.Dense{cornerGround(t)})
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.MarginalGain(matrix.NewDense(0, 2), matrix.Vector{1, 1})
	require.ErrorIs(t, err, ErrClosed)
	_, err = f.EvaluateSubset(NewIndexSet(0))
	require.ErrorIs(t, err, ErrClosed)
}

func TestExemplar_EvaluateSubsetMatchesMaterialize(t *testing.T) {
	ground := randomGround(t, 30, 3, 9)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	idx := NewIndexSet(4, 17, 25)

	bySubset, err := f.EvaluateSubset(idx)
	require.NoError(t, err)

	s, err := idx.Materialize(ground)
	require.NoError(t, err)
	byMatrix, err := f.Evaluate(s)
	require.NoError(t, err)

	assert.Equal(t, byMatrix, bySubset)

	_, err = f.EvaluateSubset(NewIndexSet(30))
	require.Error(t, err)
}

func TestExemplar_GroundSetIsCopied(t *testing.T) {
	ground := cornerGround(t)
	f, err := NewExemplarClustering(ground, WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	before, err := f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)

	// Mutating the caller's matrix must not change the bound ground set.
	ground.Set(3, 0, 100)
	after, err := f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestExemplar_Metrics(t *testing.T) {
	var mc BasicMetricsCollector
	f, err := NewExemplarClustering(cornerGround(t), WithMetricsCollector(&mc))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Evaluate(mustRows(t, matrix.Vector{1, 1}))
	require.NoError(t, err)
	_, err = f.EvaluateBatch([]*matrix.Dense{cornerGround(t), cornerGround(t)})
	require.NoError(t, err)
	_, err = f.MarginalGain(matrix.NewDense(0, 2), matrix.Vector{1, 0})
	require.NoError(t, err)
	_, err = f.Evaluate(mustRows(t, matrix.Vector{1, 2, 3}))
	require.Error(t, err)

	assert.Equal(t, int64(2), mc.EvaluateCount.Load())
	assert.Equal(t, int64(1), mc.EvaluateErrors.Load())
	assert.Equal(t, int64(1), mc.BatchCount.Load())
	assert.Equal(t, int64(2), mc.BatchSets.Load())
	assert.Equal(t, int64(1), mc.GainCount.Load())
}

func TestExemplar_MemoizedWrapper(t *testing.T) {
	f, err := NewExemplarClustering(cornerGround(t), WithPrecision(PrecisionDouble))
	require.NoError(t, err)
	defer f.Close()

	m := Memoize(f, 16)
	s := mustRows(t, matrix.Vector{1, 1})

	v1, err := m.Evaluate(s)
	require.NoError(t, err)
	v2, err := m.Evaluate(s)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	hits, misses := m.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}
