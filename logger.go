package main

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON slog.Logger on stderr tagged with the process id.
// Debug level also records the call site.
func NewLogger(level slog.Leveler) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() <= slog.LevelDebug,
	})
	return slog.New(h).With("app", "frame-grabber", "pid", os.Getpid())
}
