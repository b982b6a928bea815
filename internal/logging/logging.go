// Package logging builds the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and sink.
type Options struct {
	Level     string
	Format    string
	File      string
	MaxSizeMB int
}

// Runtime bundles the logger and its sink lifecycle.
type Runtime struct {
	Logger *slog.Logger
	closer io.Closer
}

// Close flushes and closes the file sink, if any.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New writes to stderr, or to a size-rotated file when File is set.
func New(opts Options) (Runtime, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return Runtime{}, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if path := strings.TrimSpace(opts.File); path != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		out = lj
		closer = lj
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		h = slog.NewTextHandler(out, hopts)
	case "json":
		h = slog.NewJSONHandler(out, hopts)
	default:
		return Runtime{}, fmt.Errorf("invalid log format %q (expected text|json)", opts.Format)
	}
	return Runtime{Logger: slog.New(h), closer: closer}, nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", v)
	}
}

// Discard returns a logger that drops everything; handy for tests and optional wiring.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
