// Package logger provides the structured logger used by repositories, stores and the CLI.
package logger

import (
	"context"
)

// Logger is a leveled, structured logger. Every method takes a message followed by
// alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that adds args to every entry.
	With(args ...any) Logger

	// WithContext returns a child logger carrying the correlation id stored in ctx, if any.
	WithContext(ctx context.Context) Logger
}

type correlationKey struct{}

// ContextWithCorrelationID stores a correlation id that WithContext attaches to log entries.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by ContextWithCorrelationID.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
