// Package logger provides the structured logger shared by every component.
package logger

// Logger is the structured logging contract used throughout the service.
// Log methods take a message followed by key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that adds the key-value pairs to every entry.
	With(args ...any) Logger
}
