// Package observability provides the structured logger and Prometheus
// metrics shared by the pipeline binaries and the server.
package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds a slog.Logger writing to stderr in the given format
// ("json" or "text") at the given level. Unknown values fall back to
// JSON at info level; configuration validation rejects them earlier.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
