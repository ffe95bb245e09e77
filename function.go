package exemgo

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/exemgo/matrix"
)

// Function is the contract every submodular set function implements: a
// single evaluation primitive plus the host-parallelism knob.
//
// Evaluation must be a pure function of the set's contents and the
// instance's fixed configuration: repeated calls with identical input
// return identical output up to the determinism of the chosen precision.
//
// Marginal gains and batched forms are derived from Evaluate by the
// package-level functions MarginalGain, EvaluateBatch, MarginalGainBatch,
// and MarginalGainMulti. Implementations with cheaper incremental
// computations override them via the fast-path interfaces below; overrides
// must preserve the derived results.
type Function interface {
	// Evaluate returns the function value f(S) for one candidate set.
	Evaluate(s *matrix.Dense) (float64, error)

	// WorkerCount returns the host-parallelism degree.
	WorkerCount() int

	// SetWorkerCount updates the host-parallelism degree. Values below
	// one select the available hardware concurrency (minimum 1).
	SetWorkerCount(n int)
}

// BatchEvaluator is the fast path for evaluating many independent sets.
type BatchEvaluator interface {
	EvaluateBatch(sets []*matrix.Dense) ([]float64, error)
}

// MarginalGainer is the fast path for a single marginal gain
// f(S ∪ {e}) − f(S).
type MarginalGainer interface {
	MarginalGain(s *matrix.Dense, e matrix.Vector) (float64, error)
}

// BatchMarginalGainer is the fast path for one marginal element against
// many sets.
type BatchMarginalGainer interface {
	MarginalGainBatch(sets []*matrix.Dense, e matrix.Vector) ([]float64, error)
}

// MultiMarginalGainer is the fast path for many marginal elements against
// one fixed set.
type MultiMarginalGainer interface {
	MarginalGainMulti(s *matrix.Dense, elems []matrix.Vector) ([]float64, error)
}

// Base provides the worker-count knob for embedding into Function
// implementations. The zero value selects hardware concurrency.
type Base struct {
	workers atomic.Int32
}

// WorkerCount returns the configured host-parallelism degree.
func (b *Base) WorkerCount() int {
	if n := b.workers.Load(); n >= 1 {
		return int(n)
	}
	return defaultWorkerCount()
}

// SetWorkerCount updates the host-parallelism degree. Values below one
// reset to the available hardware concurrency.
func (b *Base) SetWorkerCount(n int) {
	if n < 1 {
		n = defaultWorkerCount()
	}
	b.workers.Store(int32(n))
}

func defaultWorkerCount() int {
	if n := runtime.GOMAXPROCS(0); n >= 1 {
		return n
	}
	return 1
}

// MarginalGain returns f(S ∪ {e}) − f(S).
//
// The default costs two full evaluations; implementations satisfying
// MarginalGainer replace it with an incremental computation.
func MarginalGain(f Function, s *matrix.Dense, e matrix.Vector) (float64, error) {
	if mg, ok := f.(MarginalGainer); ok {
		return mg.MarginalGain(s, e)
	}
	return marginalGain(f, s, e)
}

func marginalGain(f Function, s *matrix.Dense, e matrix.Vector) (float64, error) {
	if !s.IsEmpty() && s.Cols() != len(e) {
		return 0, &ErrDimensionMismatch{Expected: s.Cols(), Actual: len(e)}
	}

	extended, err := s.AppendRow(e)
	if err != nil {
		return 0, err
	}

	with, err := f.Evaluate(extended)
	if err != nil {
		return 0, err
	}
	without, err := f.Evaluate(s)
	if err != nil {
		return 0, err
	}
	return with - without, nil
}

// EvaluateBatch evaluates each set independently and returns the values in
// input order. The default parallelizes across f.WorkerCount() workers.
//
// The call is all-or-nothing: any per-set failure fails the whole batch
// with no partial results.
func EvaluateBatch(f Function, sets []*matrix.Dense) ([]float64, error) {
	if be, ok := f.(BatchEvaluator); ok {
		return be.EvaluateBatch(sets)
	}
	return evaluateBatch(f, sets)
}

func evaluateBatch(f Function, sets []*matrix.Dense) ([]float64, error) {
	values := make([]float64, len(sets))

	var g errgroup.Group
	g.SetLimit(f.WorkerCount())
	for i, s := range sets {
		g.Go(func() error {
			v, err := f.Evaluate(s)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// MarginalGainBatch returns the marginal gain of one element e against
// each of the given sets: {Δf(e|S_1), ..., Δf(e|S_n)}.
func MarginalGainBatch(f Function, sets []*matrix.Dense, e matrix.Vector) ([]float64, error) {
	if bg, ok := f.(BatchMarginalGainer); ok {
		return bg.MarginalGainBatch(sets, e)
	}
	return marginalGainBatch(f, sets, e)
}

func marginalGainBatch(f Function, sets []*matrix.Dense, e matrix.Vector) ([]float64, error) {
	extended := make([]*matrix.Dense, len(sets))
	for i, s := range sets {
		if !s.IsEmpty() && s.Cols() != len(e) {
			return nil, &ErrDimensionMismatch{Expected: s.Cols(), Actual: len(e)}
		}
		var err error
		if extended[i], err = s.AppendRow(e); err != nil {
			return nil, err
		}
	}

	with, err := EvaluateBatch(f, extended)
	if err != nil {
		return nil, err
	}
	without, err := EvaluateBatch(f, sets)
	if err != nil {
		return nil, err
	}

	gains := make([]float64, len(sets))
	for i := range gains {
		gains[i] = with[i] - without[i]
	}
	return gains, nil
}

// MarginalGainMulti returns the marginal gain of each element against one
// fixed set: {Δf(e_1|S), ..., Δf(e_m|S)}. The baseline f(S) is evaluated
// once and shared.
func MarginalGainMulti(f Function, s *matrix.Dense, elems []matrix.Vector) ([]float64, error) {
	if mg, ok := f.(MultiMarginalGainer); ok {
		return mg.MarginalGainMulti(s, elems)
	}
	return marginalGainMulti(f, s, elems)
}

func marginalGainMulti(f Function, s *matrix.Dense, elems []matrix.Vector) ([]float64, error) {
	extended := make([]*matrix.Dense, len(elems))
	for i, e := range elems {
		if !s.IsEmpty() && s.Cols() != len(e) {
			return nil, &ErrDimensionMismatch{Expected: s.Cols(), Actual: len(e)}
		}
		var err error
		if extended[i], err = s.AppendRow(e); err != nil {
			return nil, err
		}
	}

	baseline, err := f.Evaluate(s)
	if err != nil {
		return nil, err
	}
	with, err := EvaluateBatch(f, extended)
	if err != nil {
		return nil, err
	}

	gains := make([]float64, len(elems))
	for i := range gains {
		gains[i] = with[i] - baseline
	}
	return gains, nil
}
