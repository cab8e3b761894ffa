// Package logging configures log/slog for the b003flash binaries and adapts
// it to bootloader.Logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a string log level to a slog.Level.
// Valid values are "debug", "info", "warn", "error"; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Adapter implements bootloader.Logger on top of a slog.Logger.
type Adapter struct {
	L *slog.Logger
}

func (a Adapter) Debug(msg string, keysAndValues ...interface{}) {
	a.L.Debug(msg, keysAndValues...)
}

func (a Adapter) Info(msg string, keysAndValues ...interface{}) {
	a.L.Info(msg, keysAndValues...)
}

func (a Adapter) Error(msg string, keysAndValues ...interface{}) {
	a.L.Error(msg, keysAndValues...)
}
