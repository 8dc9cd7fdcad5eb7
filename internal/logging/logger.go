// Package logging provides structured logging infrastructure for videosentinel.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// StructuredLogger wraps slog.Logger for per-worker structured event logging
// (state transitions in internal/netqueue, where key=value pairs read better
// than prose). The file-based Logger in logging.go covers operator-facing
// run logs; this one covers structured library events.
type StructuredLogger struct {
	*slog.Logger
}

// StructuredConfig contains structured logger configuration options.
type StructuredConfig struct {
	Level   slog.Level
	Output  io.Writer
	Enabled bool
}

// DefaultStructuredConfig returns a default structured logger configuration.
func DefaultStructuredConfig() StructuredConfig {
	return StructuredConfig{
		Level:   slog.LevelInfo,
		Output:  os.Stderr,
		Enabled: true,
	}
}

// New creates a new structured logger with the given configuration.
func New(cfg StructuredConfig) *StructuredLogger {
	if !cfg.Enabled {
		return &StructuredLogger{
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		}
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	handler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: cfg.Level,
	})

	return &StructuredLogger{
		Logger: slog.New(handler),
	}
}

// WithPrefix returns a new logger with the given prefix as a group.
func (l *StructuredLogger) WithPrefix(prefix string) *StructuredLogger {
	return &StructuredLogger{
		Logger: l.WithGroup(prefix),
	}
}

// Global structured logger instance.
var (
	globalLogger     *StructuredLogger
	globalLoggerOnce sync.Once
)

// Global returns the global structured logger instance.
func Global() *StructuredLogger {
	globalLoggerOnce.Do(func() {
		globalLogger = New(DefaultStructuredConfig())
	})
	return globalLogger
}

// SetGlobal sets the global structured logger instance.
func SetGlobal(logger *StructuredLogger) {
	globalLogger = logger
}

// Init initializes the global structured logger with the given level and output.
func Init(level slog.Level, w io.Writer) {
	SetGlobal(New(StructuredConfig{
		Level:   level,
		Output:  w,
		Enabled: true,
	}))
}

// Package-level convenience functions that delegate to the global logger.

// Debug logs a debug message to the global logger.
func Debug(msg string, args ...any) {
	Global().Debug(msg, args...)
}

// Info logs an informational message to the global logger.
func Info(msg string, args ...any) {
	Global().Info(msg, args...)
}

// Warn logs a warning message to the global logger.
func Warn(msg string, args ...any) {
	Global().Warn(msg, args...)
}

// Error logs an error message to the global logger.
func Error(msg string, args ...any) {
	Global().Error(msg, args...)
}
