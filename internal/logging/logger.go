// Package logging defines the structured-logging interface used across the
// service. The only implementation wraps log/slog.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "credential upserted", "athlete_id", id, "created", created)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions, such as a skipped credential.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs a failure.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
