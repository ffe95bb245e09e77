package exemgo

import (
	"fmt"
	"strings"
)

// Device selects the execution backend. It is bound at construction and
// immutable for the lifetime of a function instance.
type Device uint8

const (
	// DeviceCPU evaluates on the host worker pool. Default.
	DeviceCPU Device = iota
	// DeviceGPU evaluates on a WebGPU compute device.
	DeviceGPU
)

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// ParseDevice parses a device name ("cpu", "gpu").
func ParseDevice(s string) (Device, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return DeviceCPU, true
	case "gpu":
		return DeviceGPU, true
	default:
		return DeviceCPU, false
	}
}

// Precision selects the numeric width of all internal arithmetic of one
// function instance. Inputs are cast to this width before any computation
// and results round like the chosen format end to end.
type Precision uint8

const (
	// PrecisionSingle is IEEE binary32. Default.
	PrecisionSingle Precision = iota
	// PrecisionDouble is IEEE binary64.
	PrecisionDouble
	// PrecisionHalf is IEEE binary16. GPU-only: the CPU backend has no
	// native half arithmetic and does not emulate it.
	PrecisionHalf
)

func (p Precision) String() string {
	switch p {
	case PrecisionHalf:
		return "fp16"
	case PrecisionSingle:
		return "fp32"
	case PrecisionDouble:
		return "fp64"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParsePrecision parses a precision name ("fp16", "fp32", "fp64").
func ParsePrecision(s string) (Precision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp16", "half":
		return PrecisionHalf, true
	case "fp32", "single":
		return PrecisionSingle, true
	case "fp64", "double":
		return PrecisionDouble, true
	default:
		return PrecisionSingle, false
	}
}
