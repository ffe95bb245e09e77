// Package device implements the GPU execution backend on WebGPU.
//
// The layout follows the engine's evaluation shape: the ground set is
// uploaded once per instance, candidate sets are transient per call, and
// each evaluation runs a two-pass workgroup reduction that leaves a single
// scalar to copy back to the host.
package device

import (
	"errors"
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrNoAdapter is returned when no compatible GPU adapter can be acquired.
var ErrNoAdapter = errors.New("device: no compatible GPU adapter available")

// ErrShaderF16Unsupported is returned when half precision is requested but
// the adapter lacks the shader-f16 feature.
var ErrShaderF16Unsupported = errors.New("device: adapter does not support shader-f16")

// Context owns one WebGPU instance/adapter/device/queue chain.
//
// Contexts are per evaluation instance, not process-global: device,
// precision, and ground set are bound together at construction, and
// releasing the instance releases its device resources.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterName string
	shaderF16   bool
}

// NewContext acquires a GPU adapter and device. Adapter selection prefers
// high-performance adapters, then low-power, then the runtime default.
func NewContext() (*Context, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, ErrNoAdapter
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		adapter, err = instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreferenceLowPower,
		})
	}
	if err != nil || adapter == nil {
		adapter, err = instance.RequestAdapter(nil)
	}
	if err != nil || adapter == nil {
		instance.Release()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAdapter, err)
		}
		return nil, ErrNoAdapter
	}

	info := adapter.GetInfo()

	shaderF16 := false
	var required []wgpu.FeatureName
	for _, f := range adapter.EnumerateFeatures() {
		if f == wgpu.FeatureNameShaderF16 {
			shaderF16 = true
			required = append(required, wgpu.FeatureNameShaderF16)
		}
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		RequiredFeatures: required,
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrNoAdapter, err)
	}

	return &Context{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       device.GetQueue(),
		adapterName: info.Name,
		shaderF16:   shaderF16,
	}, nil
}

// AdapterName returns the selected adapter's name for logging.
func (c *Context) AdapterName() string {
	return c.adapterName
}

// SupportsShaderF16 reports whether half-precision shaders are available.
func (c *Context) SupportsShaderF16() bool {
	return c.shaderF16
}

// Close releases the device chain. Close is not safe to call while an
// evaluation is in flight.
func (c *Context) Close() {
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}
