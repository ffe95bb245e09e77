// Package resource tracks host and device memory claimed by evaluation
// instances and enforces an optional hard limit.
//
// The engine allocates in two patterns: a long-lived ground-set copy bound
// at construction, and transient per-call buffers for candidate sets.
// Both are acquired against the controller so an over-budget request fails
// fast instead of silently thrashing.
package resource

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrMemoryLimitExceeded is returned when an acquisition would exceed the
// configured limit. The condition is not retryable from the controller's
// point of view; callers surface it as resource exhaustion.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for tracked memory.
	// If 0, no limit is enforced (tracking only).
	MemoryLimitBytes int64
}

// Controller manages memory accounting for one evaluation instance.
// A nil *Controller is valid and enforces nothing.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	return c
}

// Acquire reserves bytes against the limit. Non-blocking: if the
// reservation cannot be satisfied it fails immediately with
// ErrMemoryLimitExceeded.
func (c *Controller) Acquire(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// Release returns a previous reservation.
func (c *Controller) Release(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// Used reports the currently reserved bytes.
func (c *Controller) Used() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// Limit reports the configured limit in bytes (0 = unlimited).
func (c *Controller) Limit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}
