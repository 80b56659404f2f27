// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger creates a logger writing to stderr. Format is "text" or
// "json"; anything else falls back to text.
func SetupLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// SetupLoggerWithFile creates a logger that writes JSON to the given
// file, or discards output when the path is empty. The interactive CLI
// uses this to keep the terminal clean. The returned cleanup closes the
// file and must be called before exit.
func SetupLoggerWithFile(level, logFile string) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}
	}
	return slog.New(slog.NewJSONHandler(file, opts)), func() { file.Close() }
}
