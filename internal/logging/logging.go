// internal/logging/logging.go
// Package logging builds the application's structured logger.
package logging

import (
	"io"
	"log/slog"
)

// New returns a text logger writing to w. Debug enables debug-level records.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record (for tests)
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
