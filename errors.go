package exemgo

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when a function instance is used after Close.
	ErrClosed = errors.New("exemgo: function closed")

	// ErrEmptyGroundSet is returned when a function is constructed over a
	// ground set with no rows or no columns.
	ErrEmptyGroundSet = errors.New("exemgo: ground set must have at least one row and one column")
)

// ErrDimensionMismatch indicates a candidate set or marginal element whose
// dimensionality does not match the ground set.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrUnsupportedConfiguration indicates a device/precision combination the
// requested backend cannot execute, e.g. half precision on the CPU path.
type ErrUnsupportedConfiguration struct {
	Device    Device
	Precision Precision
	cause     error
}

func (e *ErrUnsupportedConfiguration) Error() string {
	return fmt.Sprintf("unsupported configuration: precision %s on device %s", e.Precision, e.Device)
}

func (e *ErrUnsupportedConfiguration) Unwrap() error { return e.cause }

// ErrDeviceUnavailable indicates the GPU backend was requested but no
// compatible device could be acquired.
type ErrDeviceUnavailable struct {
	cause error
}

func (e *ErrDeviceUnavailable) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("device unavailable: %v", e.cause)
	}
	return "device unavailable"
}

func (e *ErrDeviceUnavailable) Unwrap() error { return e.cause }

// ErrResourceExhausted indicates host or device memory was insufficient
// for the requested ground set or batch. The condition is not retryable.
type ErrResourceExhausted struct {
	Requested int64
	Limit     int64
	cause     error
}

func (e *ErrResourceExhausted) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("resource exhausted: requested %d bytes with limit %d", e.Requested, e.Limit)
	}
	return fmt.Sprintf("resource exhausted: requested %d bytes", e.Requested)
}

func (e *ErrResourceExhausted) Unwrap() error { return e.cause }
