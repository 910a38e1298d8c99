// Package logging provides structured logging for streamwatch.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger with the specified format and
// level. Format should be "json" or "text". Level should be "debug",
// "info", "warn", or "error". Verbose forces debug level.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing and for TUI mode, where stderr must stay quiet.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ForStream returns a child logger carrying the stream's identity.
// Every log line emitted inside a supervisor goes through one of these.
func ForStream(logger *slog.Logger, streamID, name string) *slog.Logger {
	return logger.With("stream_id", streamID, "stream_name", name)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
