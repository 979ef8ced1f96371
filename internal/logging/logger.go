// Package logging is the structured logger shared by the console and the
// identity daemon, backed by log/slog.
package logging

import "context"

// Logger takes alternating key/value args after the message:
//
//	logger.Info(ctx, "session resolved", "uid", uid, "role", role)
//
// Passwords, PINs and session keys must never be passed as values.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying args on every record.
	With(args ...any) Logger
}
