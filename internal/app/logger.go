// Package app holds process bootstrap helpers shared by the server and the
// client binaries.
package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger for the given environment.
// prod: JSON at INFO. Anything else: text at DEBUG.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

// DiscardLogger returns a logger that drops every record. Used by tests.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
