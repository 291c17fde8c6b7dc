// Package log installs the process-wide structured logger.
//
// Commands print their user-facing output (transcripts, prompts) to
// stdout; diagnostics go to stderr through the logger configured here,
// so piping a command's output stays clean.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Init builds a handler at the given level and installs it as the slog
// default. Calling Init again reconfigures the logger. Set
// NEWSVOICE_LOG_FORMAT=json for machine-readable output.
func Init(level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("NEWSVOICE_LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// L returns the process logger.
func L() *slog.Logger {
	return slog.Default()
}

// parseLevel maps a level flag value to a slog level. Unknown values
// mean info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
