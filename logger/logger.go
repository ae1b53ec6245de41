// Package logger defines the minimal structured logging surface the engine
// writes to, with adapters for phuslu-style logging and the standard slog.
package logger

// Logger accepts a message plus alternating key/value pairs.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc produces a correlation id for one decision. Implementations must
// be safe for concurrent use.
type TraceIDFunc func() string
