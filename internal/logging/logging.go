// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Setup builds a JSON logger on stdout. When logFile is set, records are
// also appended to that file. The returned cleanup closes the file.
func Setup(level, logFile string) (*slog.Logger, func() error, error) {
	lvl := ParseLevel(level)
	if logFile == "" {
		return New(os.Stdout, nil, lvl), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return New(os.Stdout, file, lvl), file.Close, nil
}

// New returns a JSON logger writing to out and, if file is non-nil, to file.
func New(out, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	stdout := slog.NewJSONHandler(out, opts)
	if file == nil {
		return slog.New(stdout)
	}
	return slog.New(slogmulti.Fanout(stdout, slog.NewJSONHandler(file, opts)))
}
