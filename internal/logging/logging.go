// Package logging provides structured logging for the hostwatch application.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports text and JSON
// output, configurable log levels, rotated log files and component loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.InitWithOptions(logging.Options{Level: slog.LevelInfo, File: "/var/log/hostwatch.log"})
//
//	// Get a component logger
//	log := logging.Component("collector")
//	log.Info("collector started", "interval", "2s")
//
// Component loggers are usually package variables created before Init runs.
// They resolve the global handler on every record, so a later Init still
// applies its level, format and output to them.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// root is the handler every logger of this package writes through.
var root atomic.Pointer[slog.Handler]

func init() {
	Init(slog.LevelInfo, false)
}

// Options configures the global logger.
type Options struct {
	Level slog.Level
	JSON  bool

	// File enables rotated file output. Empty writes to stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWithOptions(Options{Level: level, JSON: jsonFormat})
}

// InitWithOptions initializes the global logger. When a file is configured,
// output goes through a lumberjack rotator instead of stdout.
func InitWithOptions(opts Options) {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.Level == slog.LevelDebug,
	}

	if opts.JSON {
		InitWithHandler(slog.NewJSONHandler(out, handlerOpts))
	} else {
		InitWithHandler(slog.NewTextHandler(out, handlerOpts))
	}
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	root.Store(&handler)
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("aggregator")
//	log.Info("started") // Output: time=... level=INFO component=aggregator msg=started
func Component(name string) *slog.Logger {
	return slog.New(lateHandler{}).With("component", name)
}

// =============================================================================
// Late-bound handler
// =============================================================================

// lateHandler forwards to the current root handler. Attributes and groups
// bound through With are replayed onto it for each record.
type lateHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h lateHandler) resolve() slog.Handler {
	out := *root.Load()
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*root.Load()).Enabled(ctx, level)
}

func (h lateHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h lateHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h lateHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return lateHandler{ops: append(ops, op)}
}
