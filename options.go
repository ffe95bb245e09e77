package exemgo

type options struct {
	device      Device
	precision   Precision
	workerCount int
	logger      *Logger
	metrics     MetricsCollector
	memoryLimit int64
}

func defaultOptions() options {
	return options{
		device:    DeviceCPU,
		precision: PrecisionSingle,
		logger:    NoopLogger(),
		metrics:   NoopMetricsCollector{},
	}
}

// Option configures function construction.
//
// Device, precision, and ground set are immutable after construction;
// re-binding requires a new instance.
type Option func(*options)

// WithDevice selects the execution backend. Default: DeviceCPU.
func WithDevice(d Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithPrecision selects the numeric width of all internal arithmetic.
// Default: PrecisionSingle. PrecisionHalf requires DeviceGPU.
func WithPrecision(p Precision) Option {
	return func(o *options) {
		o.precision = p
	}
}

// WithWorkerCount sets the CPU-path parallelism degree. Values below one
// select the available hardware concurrency (minimum 1).
func WithWorkerCount(n int) Option {
	return func(o *options) {
		o.workerCount = n
	}
}

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// evaluations. Pass nil to disable metrics collection.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithMemoryLimit enforces a hard limit, in bytes, on memory tracked by
// the instance (ground-set copies and per-call buffers). Exceeding the
// limit surfaces ErrResourceExhausted. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}
