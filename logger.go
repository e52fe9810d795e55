package sage

import (
	"log/slog"
)

// Logger defines the interface for application logging.
// sage uses structured logging with key-value pairs so that every module,
// the event bus and the conversation controller produce consistent output.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// *slog.Logger satisfies it directly.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal events like module loading and state transitions.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for module failures and subscriber errors caught by the bus.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

var _ Logger = (*slog.Logger)(nil)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
