package exemgo

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/exemgo/internal/device"
	"github.com/hupe1980/exemgo/internal/f16"
	"github.com/hupe1980/exemgo/internal/hostpool"
	"github.com/hupe1980/exemgo/internal/kernel"
	"github.com/hupe1980/exemgo/internal/resource"
	"github.com/hupe1980/exemgo/matrix"
)

// ExemplarClustering is the facility-location-style exemplar objective: it
// scores how well a candidate set S covers the ground set V when S's rows
// act as cluster exemplars.
//
// For each ground-set member v the covering distance under S is the
// minimum Euclidean distance from v to any row of S, never exceeding v's
// distance to the origin (the reference when S is empty). The value is
//
//	f(S) = (1/N) Σ_v [ refDist(v) − min(refDist(v), minDist(v, S)) ]
//
// which is monotone, submodular, and non-negative with f(∅) = 0.
//
// The ground set, device, and precision are bound at construction and
// immutable; candidate sets are call-scoped and never retained. Methods
// are safe for concurrent use; on the GPU backend concurrent evaluations
// serialize on the device.
type ExemplarClustering struct {
	Base

	device    Device
	precision Precision
	logger    *Logger
	metrics   MetricsCollector
	rc        *resource.Controller

	n, dim int

	ground    []float64 // master copy, row-major
	groundF32 []float32 // CPU fp32 operand, cast once
	refF32    []float32
	refF64    []float64

	pool *hostpool.Pool
	gctx *device.Context
	gpu  *device.Evaluator

	trackedBytes int64
	closed       atomic.Bool
}

var (
	_ Function            = (*ExemplarClustering)(nil)
	_ BatchEvaluator      = (*ExemplarClustering)(nil)
	_ MarginalGainer      = (*ExemplarClustering)(nil)
	_ BatchMarginalGainer = (*ExemplarClustering)(nil)
	_ MultiMarginalGainer = (*ExemplarClustering)(nil)
)

// NewExemplarClustering binds the exemplar objective to a ground set.
// The ground set is copied; the caller keeps ownership of its matrix.
func NewExemplarClustering(ground *matrix.Dense, opts ...Option) (*ExemplarClustering, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	if ground.Rows() < 1 || ground.Cols() < 1 {
		return nil, ErrEmptyGroundSet
	}
	if o.precision == PrecisionHalf && o.device != DeviceGPU {
		return nil, &ErrUnsupportedConfiguration{Device: o.device, Precision: o.precision}
	}

	ec := &ExemplarClustering{
		device:    o.device,
		precision: o.precision,
		logger:    o.logger,
		metrics:   o.metrics,
		rc:        resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit}),
		n:         ground.Rows(),
		dim:       ground.Cols(),
	}
	ec.SetWorkerCount(o.workerCount)

	if err := ec.reserve(ec.footprintBytes()); err != nil {
		return nil, err
	}

	ec.ground = slices.Clone(ground.Data())

	switch o.device {
	case DeviceCPU:
		ec.pool = hostpool.New(0)
		ec.prepareCPU()
	case DeviceGPU:
		if err := ec.prepareGPU(); err != nil {
			ec.release()
			return nil, err
		}
	default:
		ec.release()
		return nil, &ErrUnsupportedConfiguration{Device: o.device, Precision: o.precision}
	}

	ec.logger = ec.logger.WithDevice(ec.device).WithPrecision(ec.precision)
	if ec.device == DeviceGPU {
		ec.logger.Info("exemplar clustering ready",
			"rows", ec.n, "dims", ec.dim, "adapter", ec.gctx.AdapterName())
	} else {
		ec.logger.Info("exemplar clustering ready",
			"rows", ec.n, "dims", ec.dim, "workers", ec.WorkerCount(), "simd", kernel.Detect().String())
	}

	return ec, nil
}

// footprintBytes is the construction-time memory claim: the float64
// master copy plus the precision-specific operands or the device-resident
// ground set.
func (ec *ExemplarClustering) footprintBytes() int64 {
	elems := int64(ec.n) * int64(ec.dim)
	bytes := elems * 8
	switch {
	case ec.device == DeviceGPU:
		switch ec.precision {
		case PrecisionHalf:
			bytes += elems * 2
		case PrecisionDouble:
			bytes += elems * 8
		default:
			bytes += elems * 4
		}
	case ec.precision == PrecisionSingle:
		bytes += elems*4 + int64(ec.n)*4 // cast ground + reference distances
	default:
		bytes += int64(ec.n) * 8
	}
	return bytes
}

func (ec *ExemplarClustering) reserve(bytes int64) error {
	if err := ec.rc.Acquire(bytes); err != nil {
		return &ErrResourceExhausted{Requested: bytes, Limit: ec.rc.Limit(), cause: err}
	}
	ec.trackedBytes += bytes
	return nil
}

func (ec *ExemplarClustering) release() {
	ec.rc.Release(ec.trackedBytes)
	ec.trackedBytes = 0
}

// transientBytes is the per-call allocation claim for a k-row candidate
// set: the working-precision copy on the fp32 CPU path, or the host encode
// buffer plus the device-resident candidate buffer on the GPU path. The
// fp64 CPU path scans the caller's matrix in place and claims nothing.
func (ec *ExemplarClustering) transientBytes(rows int) int64 {
	elems := int64(rows) * int64(ec.dim)
	switch {
	case ec.device == DeviceGPU:
		switch ec.precision {
		case PrecisionHalf:
			return 2 * elems * 2
		case PrecisionDouble:
			return 2 * elems * 8
		default:
			return 2 * elems * 4
		}
	case ec.precision == PrecisionSingle:
		return elems * 4
	default:
		return 0
	}
}

// acquireTransient claims per-call bytes against the limit for the
// duration of one evaluation. Unlike reserve, the claim is not added to
// the instance's tracked footprint; the caller pairs it with
// releaseTransient when the call returns.
func (ec *ExemplarClustering) acquireTransient(bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	if err := ec.rc.Acquire(bytes); err != nil {
		return &ErrResourceExhausted{Requested: bytes, Limit: ec.rc.Limit(), cause: err}
	}
	return nil
}

func (ec *ExemplarClustering) releaseTransient(bytes int64) {
	if bytes > 0 {
		ec.rc.Release(bytes)
	}
}

// prepareCPU casts the ground set to the working precision and precomputes
// the per-row reference distances, both at that precision.
func (ec *ExemplarClustering) prepareCPU() {
	if ec.precision == PrecisionSingle {
		ec.groundF32 = kernel.CastF32(ec.ground)
		ec.refF32 = make([]float32, ec.n)
		for i := 0; i < ec.n; i++ {
			ec.refF32[i] = kernel.NormF32(ec.groundF32[i*ec.dim : (i+1)*ec.dim])
		}
		return
	}
	ec.refF64 = make([]float64, ec.n)
	for i := 0; i < ec.n; i++ {
		ec.refF64[i] = kernel.NormF64(ec.ground[i*ec.dim : (i+1)*ec.dim])
	}
}

func (ec *ExemplarClustering) prepareGPU() error {
	ctx, err := device.NewContext()
	if err != nil {
		return &ErrDeviceUnavailable{cause: err}
	}

	scalar := device.ScalarF32
	switch ec.precision {
	case PrecisionHalf:
		scalar = device.ScalarF16
	case PrecisionDouble:
		scalar = device.ScalarF64
	}

	eval, err := device.NewEvaluator(ctx, ec.ground, ec.n, ec.dim, scalar)
	if err != nil {
		ctx.Close()
		switch {
		case errors.Is(err, device.ErrShaderF16Unsupported):
			return &ErrUnsupportedConfiguration{Device: ec.device, Precision: ec.precision, cause: err}
		case errors.Is(err, device.ErrAllocation):
			return &ErrResourceExhausted{Requested: int64(ec.n) * int64(ec.dim) * int64(8), cause: err}
		default:
			return &ErrDeviceUnavailable{cause: err}
		}
	}

	ec.gctx = ctx
	ec.gpu = eval
	return nil
}

// GroundSetSize returns N, the number of ground-set rows.
func (ec *ExemplarClustering) GroundSetSize() int { return ec.n }

// Dimensions returns d, the ground-set dimensionality.
func (ec *ExemplarClustering) Dimensions() int { return ec.dim }

// Device returns the execution backend bound at construction.
func (ec *ExemplarClustering) Device() Device { return ec.device }

// Precision returns the numeric width bound at construction.
func (ec *ExemplarClustering) Precision() Precision { return ec.precision }

// MemoryUsed reports the bytes currently tracked by the instance.
func (ec *ExemplarClustering) MemoryUsed() int64 { return ec.rc.Used() }

// Close releases the worker pool and any device resources. Close is
// idempotent; evaluations after Close return ErrClosed.
func (ec *ExemplarClustering) Close() error {
	if !ec.closed.CompareAndSwap(false, true) {
		return nil
	}
	if ec.pool != nil {
		ec.pool.Close()
	}
	if ec.gpu != nil {
		ec.gpu.Close()
	}
	if ec.gctx != nil {
		ec.gctx.Close()
	}
	ec.release()
	return nil
}

// Evaluate returns f(S) for one candidate set.
func (ec *ExemplarClustering) Evaluate(s *matrix.Dense) (float64, error) {
	start := time.Now()
	v, err := ec.evaluate(s)
	ec.metrics.RecordEvaluate(time.Since(start), err)
	if err == nil {
		ec.logger.WithSetSize(s.Rows()).Debug("evaluate", "value", v, "took", time.Since(start))
	}
	return v, err
}

func (ec *ExemplarClustering) evaluate(s *matrix.Dense) (float64, error) {
	if ec.closed.Load() {
		return 0, ErrClosed
	}
	if err := ec.checkSet(s); err != nil {
		return 0, err
	}
	if s.IsEmpty() {
		return 0, nil
	}

	bytes := ec.transientBytes(s.Rows())
	if err := ec.acquireTransient(bytes); err != nil {
		return 0, err
	}
	defer ec.releaseTransient(bytes)

	if ec.device == DeviceGPU {
		return ec.evaluateGPU(s.Data())
	}
	return ec.evaluateCPU(s)
}

func (ec *ExemplarClustering) checkSet(s *matrix.Dense) error {
	if !s.IsEmpty() && s.Cols() != ec.dim {
		return &ErrDimensionMismatch{Expected: ec.dim, Actual: s.Cols()}
	}
	return nil
}

func (ec *ExemplarClustering) checkElem(e matrix.Vector) error {
	if len(e) != ec.dim {
		return &ErrDimensionMismatch{Expected: ec.dim, Actual: len(e)}
	}
	return nil
}

// evaluateCPU partitions the ground-set rows across the worker pool; each
// chunk accumulates a partial sum at working precision into its own slot
// and a sequential combine finishes the reduction.
func (ec *ExemplarClustering) evaluateCPU(s *matrix.Dense) (float64, error) {
	chunks := ec.WorkerCount()

	if ec.precision == PrecisionSingle {
		set := kernel.CastF32(s.Data())
		partials := make([]float32, hostpool.Chunks(ec.n, chunks))
		err := ec.pool.ParallelFor(ec.n, chunks, func(chunk, start, end int) {
			partials[chunk] = ec.coverSumF32(set, start, end)
		})
		if err != nil {
			return 0, ErrClosed
		}
		var total float32
		for _, p := range partials {
			total += p
		}
		return float64(total / float32(ec.n)), nil
	}

	set := s.Data()
	partials := make([]float64, hostpool.Chunks(ec.n, chunks))
	err := ec.pool.ParallelFor(ec.n, chunks, func(chunk, start, end int) {
		partials[chunk] = ec.coverSumF64(set, start, end)
	})
	if err != nil {
		return 0, ErrClosed
	}
	var total float64
	for _, p := range partials {
		total += p
	}
	return total / float64(ec.n), nil
}

// coverSumF32 accumulates Σ max(refDist − minDist, 0) over rows
// [start, end) in float32.
func (ec *ExemplarClustering) coverSumF32(set []float32, start, end int) float32 {
	var sum float32
	for i := start; i < end; i++ {
		row := ec.groundF32[i*ec.dim : (i+1)*ec.dim]
		ref := ec.refF32[i]
		sum += ref - kernel.MinDistF32(row, set, ec.dim, ref)
	}
	return sum
}

// coverSumF64 is the float64 counterpart of coverSumF32.
func (ec *ExemplarClustering) coverSumF64(set []float64, start, end int) float64 {
	var sum float64
	for i := start; i < end; i++ {
		row := ec.ground[i*ec.dim : (i+1)*ec.dim]
		ref := ec.refF64[i]
		sum += ref - kernel.MinDistF64(row, set, ec.dim, ref)
	}
	return sum
}

func (ec *ExemplarClustering) evaluateGPU(set []float64) (float64, error) {
	sum, err := ec.gpu.Evaluate(set)
	if err != nil {
		if errors.Is(err, device.ErrAllocation) {
			return 0, &ErrResourceExhausted{Requested: int64(len(set)) * 8, Limit: ec.rc.Limit(), cause: err}
		}
		return 0, err
	}
	return ec.normalize(sum), nil
}

// normalize applies the 1/N scaling at working precision.
func (ec *ExemplarClustering) normalize(sum float64) float64 {
	switch ec.precision {
	case PrecisionHalf:
		return f16.Round(float64(float32(sum) / float32(ec.n)))
	case PrecisionSingle:
		return float64(float32(sum) / float32(ec.n))
	default:
		return sum / float64(ec.n)
	}
}

// EvaluateBatch evaluates the sets in input order. On the CPU backend the
// batch index space is partitioned across the worker count with a
// sequential row scan per set; on the GPU backend the sets launch one
// after another against the device-resident ground set.
//
// The call is all-or-nothing: every set is validated before any work runs.
func (ec *ExemplarClustering) EvaluateBatch(sets []*matrix.Dense) ([]float64, error) {
	start := time.Now()
	vs, err := ec.evaluateBatch(sets)
	ec.metrics.RecordBatch(len(sets), time.Since(start), err)
	if err == nil {
		ec.logger.Debug("evaluate batch", "sets", len(sets), "took", time.Since(start))
	}
	return vs, err
}

func (ec *ExemplarClustering) evaluateBatch(sets []*matrix.Dense) ([]float64, error) {
	if ec.closed.Load() {
		return nil, ErrClosed
	}
	for _, s := range sets {
		if err := ec.checkSet(s); err != nil {
			return nil, err
		}
	}

	values := make([]float64, len(sets))

	if ec.device == DeviceGPU {
		for i, s := range sets {
			if s.IsEmpty() {
				continue
			}
			bytes := ec.transientBytes(s.Rows())
			if err := ec.acquireTransient(bytes); err != nil {
				return nil, err
			}
			v, err := ec.evaluateGPU(s.Data())
			ec.releaseTransient(bytes)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}

	var g errgroup.Group
	g.SetLimit(ec.WorkerCount())
	for i, s := range sets {
		g.Go(func() error {
			if s.IsEmpty() {
				return nil
			}
			bytes := ec.transientBytes(s.Rows())
			if err := ec.acquireTransient(bytes); err != nil {
				return err
			}
			defer ec.releaseTransient(bytes)
			if ec.precision == PrecisionSingle {
				sum := ec.coverSumF32(kernel.CastF32(s.Data()), 0, ec.n)
				values[i] = float64(sum / float32(ec.n))
				return nil
			}
			sum := ec.coverSumF64(s.Data(), 0, ec.n)
			values[i] = sum / float64(ec.n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// MarginalGain returns f(S ∪ {e}) − f(S). On the CPU backend the gain is
// computed in a single fused pass over the ground set instead of two full
// evaluations; the result matches the derived default at working
// precision.
func (ec *ExemplarClustering) MarginalGain(s *matrix.Dense, e matrix.Vector) (float64, error) {
	start := time.Now()
	g, err := ec.marginalGain(s, e)
	ec.metrics.RecordMarginalGain(time.Since(start), err)
	return g, err
}

func (ec *ExemplarClustering) marginalGain(s *matrix.Dense, e matrix.Vector) (float64, error) {
	if ec.closed.Load() {
		return 0, ErrClosed
	}
	if err := ec.checkElem(e); err != nil {
		return 0, err
	}
	if err := ec.checkSet(s); err != nil {
		return 0, err
	}

	// The extended set S ∪ {e} is the largest buffer the gain holds at
	// once; on the GPU path AppendRow also materializes it on the host.
	bytes := ec.transientBytes(s.Rows() + 1)
	if ec.device == DeviceGPU {
		bytes += (int64(s.Rows()) + 1) * int64(ec.dim) * 8
	}
	if err := ec.acquireTransient(bytes); err != nil {
		return 0, err
	}
	defer ec.releaseTransient(bytes)

	if ec.device == DeviceGPU {
		extended, err := s.AppendRow(e)
		if err != nil {
			return 0, err
		}
		with, err := ec.evaluateGPU(extended.Data())
		if err != nil {
			return 0, err
		}
		if s.IsEmpty() {
			return with, nil
		}
		without, err := ec.evaluateGPU(s.Data())
		if err != nil {
			return 0, err
		}
		return with - without, nil
	}

	chunks := ec.WorkerCount()

	if ec.precision == PrecisionSingle {
		set := kernel.CastF32(s.Data())
		elem := kernel.CastF32(e)
		partials := make([]float32, hostpool.Chunks(ec.n, chunks))
		err := ec.pool.ParallelFor(ec.n, chunks, func(chunk, start, end int) {
			var sum float32
			for i := start; i < end; i++ {
				row := ec.groundF32[i*ec.dim : (i+1)*ec.dim]
				mindS := kernel.MinDistF32(row, set, ec.dim, ec.refF32[i])
				mindSE := kernel.MinDistF32(row, elem, ec.dim, mindS)
				sum += mindS - mindSE
			}
			partials[chunk] = sum
		})
		if err != nil {
			return 0, ErrClosed
		}
		var total float32
		for _, p := range partials {
			total += p
		}
		return float64(total / float32(ec.n)), nil
	}

	set := s.Data()
	partials := make([]float64, hostpool.Chunks(ec.n, chunks))
	err := ec.pool.ParallelFor(ec.n, chunks, func(chunk, start, end int) {
		var sum float64
		for i := start; i < end; i++ {
			row := ec.ground[i*ec.dim : (i+1)*ec.dim]
			mindS := kernel.MinDistF64(row, set, ec.dim, ec.refF64[i])
			mindSE := kernel.MinDistF64(row, e, ec.dim, mindS)
			sum += mindS - mindSE
		}
		partials[chunk] = sum
	})
	if err != nil {
		return 0, ErrClosed
	}
	var total float64
	for _, p := range partials {
		total += p
	}
	return total / float64(ec.n), nil
}

// EvaluateSubset evaluates f over the candidate set formed by the
// ground-set rows idx selects. This is the calling convention of greedy
// drivers that pick exemplars from the ground set itself: no row copies
// cross the API per candidate, only indices.
func (ec *ExemplarClustering) EvaluateSubset(idx *IndexSet) (float64, error) {
	if ec.closed.Load() {
		return 0, ErrClosed
	}

	indices := idx.Indices()

	// The gathered rows are an instance-allocated float64 copy on top of
	// whatever the evaluation itself claims.
	gatherBytes := int64(len(indices)) * int64(ec.dim) * 8
	if err := ec.acquireTransient(gatherBytes); err != nil {
		return 0, err
	}
	defer ec.releaseTransient(gatherBytes)

	data := make([]float64, 0, len(indices)*ec.dim)
	for _, i := range indices {
		if i >= ec.n {
			return 0, fmt.Errorf("index %d out of range for ground set of %d rows", i, ec.n)
		}
		data = append(data, ec.ground[i*ec.dim:(i+1)*ec.dim]...)
	}

	s, err := matrix.FromData(len(indices), ec.dim, data)
	if err != nil {
		return 0, err
	}
	return ec.Evaluate(s)
}

// MarginalGainBatch returns the gain of e against each set, evaluated as
// independent fused passes on the CPU backend.
func (ec *ExemplarClustering) MarginalGainBatch(sets []*matrix.Dense, e matrix.Vector) ([]float64, error) {
	if ec.closed.Load() {
		return nil, ErrClosed
	}
	if err := ec.checkElem(e); err != nil {
		return nil, err
	}
	for _, s := range sets {
		if err := ec.checkSet(s); err != nil {
			return nil, err
		}
	}

	gains := make([]float64, len(sets))
	var g errgroup.Group
	g.SetLimit(ec.WorkerCount())
	for i, s := range sets {
		g.Go(func() error {
			v, err := ec.marginalGain(s, e)
			if err != nil {
				return err
			}
			gains[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return gains, nil
}

// MarginalGainMulti returns the gain of each element against one fixed
// set, sharing a single baseline evaluation.
func (ec *ExemplarClustering) MarginalGainMulti(s *matrix.Dense, elems []matrix.Vector) ([]float64, error) {
	if ec.closed.Load() {
		return nil, ErrClosed
	}
	if err := ec.checkSet(s); err != nil {
		return nil, err
	}
	for _, e := range elems {
		if err := ec.checkElem(e); err != nil {
			return nil, err
		}
	}
	return marginalGainMulti(ec, s, elems)
}
