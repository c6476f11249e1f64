package logger

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts "debug", "info", "warn" or "error" into a slog level.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "":
		return slog.LevelInfo, errors.New("logLevel must not be empty")
	default:
		return slog.LevelInfo, errors.New("invalid logLevel: " + logLevel)
	}
}

// NewHandler returns a JSON or text handler writing to w. The record time
// is emitted under the "timestamp" key.
func NewHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: a.Value}
			}
			return a
		},
	}

	switch strings.ToLower(strings.TrimSpace(logFormat)) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	case "":
		return nil, errors.New("logFormat must not be empty")
	default:
		return nil, errors.New("invalid logFormat: " + logFormat)
	}
}

// New builds a slog logger with level and format from arguments. It does
// not touch slog.Default, so the standard log package keeps its writer.
// logLevel: "info", "debug", "warn", "error"
// logFormat: "json" or "text"
func New(w io.Writer, logLevel, logFormat string) (*slog.Logger, error) {
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	handler, err := NewHandler(w, level, logFormat)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}
