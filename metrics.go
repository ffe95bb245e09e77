package exemgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordEvaluate is called after each single-set evaluation.
	// duration is the total time taken, err is nil if successful.
	RecordEvaluate(duration time.Duration, err error)

	// RecordBatch is called after each batched evaluation.
	// count is the number of sets evaluated.
	RecordBatch(count int, duration time.Duration, err error)

	// RecordMarginalGain is called after each marginal-gain computation.
	RecordMarginalGain(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordEvaluate(time.Duration, error)     {}
func (NoopMetricsCollector) RecordBatch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordMarginalGain(time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	EvaluateCount      atomic.Int64
	EvaluateErrors     atomic.Int64
	EvaluateTotalNanos atomic.Int64
	BatchCount         atomic.Int64
	BatchSets          atomic.Int64
	BatchErrors        atomic.Int64
	GainCount          atomic.Int64
	GainErrors         atomic.Int64
	GainTotalNanos     atomic.Int64
}

func (m *BasicMetricsCollector) RecordEvaluate(d time.Duration, err error) {
	m.EvaluateCount.Add(1)
	m.EvaluateTotalNanos.Add(int64(d))
	if err != nil {
		m.EvaluateErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordBatch(count int, d time.Duration, err error) {
	m.BatchCount.Add(1)
	m.BatchSets.Add(int64(count))
	if err != nil {
		m.BatchErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordMarginalGain(d time.Duration, err error) {
	m.GainCount.Add(1)
	m.GainTotalNanos.Add(int64(d))
	if err != nil {
		m.GainErrors.Add(1)
	}
}
