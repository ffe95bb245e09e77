package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrAllocation is wrapped by buffer-allocation failures so callers can
// surface them as resource exhaustion.
var ErrAllocation = errors.New("device: buffer allocation failed")

// readbackTimeout bounds the staging-buffer map wait. Evaluations are
// single kernel launches; anything past this is a wedged device.
const readbackTimeout = 10 * time.Second

// Evaluator holds the device-resident ground set and the compiled
// reduction pipelines for one evaluation instance.
//
// The ground-set buffer is allocated once and lives until Close. The
// candidate-set buffer is transient, scoped to each Evaluate call. One
// evaluation is in flight at a time; concurrent callers serialize on an
// internal mutex.
type Evaluator struct {
	ctx    *Context
	scalar Scalar
	n, dim int

	numGroups uint32

	groundBuf   *wgpu.Buffer
	partialsBuf *wgpu.Buffer
	resultBuf   *wgpu.Buffer
	stagingBuf  *wgpu.Buffer

	coverPipeline *wgpu.ComputePipeline
	sumPipeline   *wgpu.ComputePipeline
	sumBindGroup  *wgpu.BindGroup

	mu sync.Mutex
}

// NewEvaluator compiles the reduction pipelines for an N×dim ground set at
// the given scalar representation and uploads the ground set.
func NewEvaluator(ctx *Context, ground []float64, n, dim int, scalar Scalar) (*Evaluator, error) {
	if scalar == ScalarF16 && !ctx.SupportsShaderF16() {
		return nil, ErrShaderF16Unsupported
	}

	e := &Evaluator{
		ctx:       ctx,
		scalar:    scalar,
		n:         n,
		dim:       dim,
		numGroups: uint32((n + workgroupSize - 1) / workgroupSize),
	}

	var err error
	if e.coverPipeline, err = e.compile("exemgo_cover", coverageShader(scalar, n, dim)); err != nil {
		return nil, err
	}
	if e.sumPipeline, err = e.compile("exemgo_sum", sumShader(scalar)); err != nil {
		return nil, err
	}

	e.groundBuf, err = ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "exemgo_ground",
		Contents: scalar.encode(ground),
		Usage:    wgpu.BufferUsageStorage,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: ground set: %v", ErrAllocation, err)
	}

	partialsBytes := int(e.numGroups) * scalar.elemBytes()
	partialsBytes = (partialsBytes + 3) &^ 3
	e.partialsBuf, err = ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "exemgo_partials",
		Size:  uint64(partialsBytes),
		Usage: wgpu.BufferUsageStorage,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: partials: %v", ErrAllocation, err)
	}

	e.resultBuf, err = ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "exemgo_result",
		Size:  scalar.resultBytes(),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: result: %v", ErrAllocation, err)
	}

	e.stagingBuf, err = ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "exemgo_staging",
		Size:  scalar.resultBytes(),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("%w: staging: %v", ErrAllocation, err)
	}

	// Pass 2 only touches instance-lifetime buffers, so its bind group is
	// built once.
	e.sumBindGroup, err = ctx.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "exemgo_sum_bind",
		Layout: e.sumPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: e.partialsBuf, Size: e.partialsBuf.GetSize()},
			{Binding: 1, Buffer: e.resultBuf, Size: e.resultBuf.GetSize()},
		},
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func (e *Evaluator) compile(label, code string) (*wgpu.ComputePipeline, error) {
	module, err := e.ctx.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("device: compile %s: %w", label, err)
	}
	defer module.Release()

	pipeline, err := e.ctx.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("device: pipeline %s: %w", label, err)
	}
	return pipeline, nil
}

// Evaluate runs the reduction for one candidate set, given as flattened
// row-major data with the instance's dimensionality. The set must be
// non-empty; the empty set short-circuits on the host.
//
// The returned sum is Σ_v max(refDist(v) − minDist(v, S), 0) at device
// precision; the caller applies the 1/N normalization.
func (e *Evaluator) Evaluate(set []float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.groundBuf == nil {
		return 0, errors.New("device: evaluator closed")
	}

	candBuf, err := e.ctx.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "exemgo_cand",
		Contents: e.scalar.encode(set),
		Usage:    wgpu.BufferUsageStorage,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: candidate set: %v", ErrAllocation, err)
	}
	defer candBuf.Destroy()

	coverBind, err := e.ctx.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "exemgo_cover_bind",
		Layout: e.coverPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: e.groundBuf, Size: e.groundBuf.GetSize()},
			{Binding: 1, Buffer: candBuf, Size: candBuf.GetSize()},
			{Binding: 2, Buffer: e.partialsBuf, Size: e.partialsBuf.GetSize()},
		},
	})
	if err != nil {
		return 0, err
	}
	defer coverBind.Release()

	encoder, err := e.ctx.device.CreateCommandEncoder(nil)
	if err != nil {
		return 0, err
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(e.coverPipeline)
	pass.SetBindGroup(0, coverBind, nil)
	pass.DispatchWorkgroups(e.numGroups, 1, 1)
	pass.SetPipeline(e.sumPipeline)
	pass.SetBindGroup(0, e.sumBindGroup, nil)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(e.resultBuf, 0, e.stagingBuf, 0, e.scalar.resultBytes())

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return 0, err
	}
	e.ctx.queue.Submit(cmd)

	raw, err := e.readback()
	if err != nil {
		return 0, err
	}
	return e.scalar.decodeValue(raw), nil
}

// readback blocks until the staging buffer is mapped and returns a copy of
// its contents.
func (e *Evaluator) readback() ([]byte, error) {
	size := e.scalar.resultBytes()

	done := make(chan struct{})
	var mapErr error
	err := e.stagingBuf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("device: map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("device: map async: %w", err)
	}

	deadline := time.After(readbackTimeout)
poll:
	for {
		e.ctx.device.Poll(false, nil)
		select {
		case <-done:
			break poll
		case <-deadline:
			return nil, errors.New("device: result readback timed out")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := e.stagingBuf.GetMappedRange(0, uint(size))
	if data == nil {
		e.stagingBuf.Unmap()
		return nil, errors.New("device: failed to map staging buffer")
	}
	out := make([]byte, len(data))
	copy(out, data)
	e.stagingBuf.Unmap()

	return out, nil
}

// Close releases all device buffers and pipelines. Close is idempotent
// and must not race an in-flight Evaluate.
func (e *Evaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sumBindGroup != nil {
		e.sumBindGroup.Release()
		e.sumBindGroup = nil
	}
	if e.coverPipeline != nil {
		e.coverPipeline.Release()
		e.coverPipeline = nil
	}
	if e.sumPipeline != nil {
		e.sumPipeline.Release()
		e.sumPipeline = nil
	}
	for _, buf := range []**wgpu.Buffer{&e.groundBuf, &e.partialsBuf, &e.resultBuf, &e.stagingBuf} {
		if *buf != nil {
			(*buf).Destroy()
			*buf = nil
		}
	}
}
