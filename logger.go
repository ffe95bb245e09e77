package exemgo

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with exemgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDevice adds the execution device field to the logger.
func (l *Logger) WithDevice(d Device) *Logger {
	return &Logger{
		Logger: l.Logger.With("device", d.String()),
	}
}

// WithPrecision adds the numeric precision field to the logger.
func (l *Logger) WithPrecision(p Precision) *Logger {
	return &Logger{
		Logger: l.Logger.With("precision", p.String()),
	}
}

// WithSetSize adds a candidate-set size field to the logger.
func (l *Logger) WithSetSize(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}
