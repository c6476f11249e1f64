// Package cli provides the command-line interface for resolving and
// downloading distribution images.
package cli

import (
	"log/slog"
	"os"

	"github.com/clean-dependency-project/isofetch/internal/logger"
)

// NewLoggers creates default loggers with JSON output.
func NewLoggers(level slog.Level) (*slog.Logger, *slog.Logger) {
	return NewLoggersWithFormat(level, "json")
}

// NewLoggersWithFormat creates the stdout and stderr role loggers. All logs
// are sent to stderr to keep stdout clean for resolved URLs and JSON
// output. An unknown format falls back to JSON.
func NewLoggersWithFormat(level slog.Level, logFormat string) (*slog.Logger, *slog.Logger) {
	handler, err := logger.NewHandler(os.Stderr, level, logFormat)
	if err != nil {
		handler, _ = logger.NewHandler(os.Stderr, level, "json")
	}

	stdout := slog.New(handler)
	stderr := slog.New(handler)

	return stdout, stderr
}

// ParseLogLevelOrDefault parses a log level string or returns a default level.
func ParseLogLevelOrDefault(levelStr string) slog.Level {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return slog.LevelInfo // Default to info level
	}
	return level
}
