// Package logging builds the daemon's slog loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr; stdout is left to vibctl-style program output.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	return slog.New(NewHandler(level, format, w))
}

// NewHandler returns the handler NewLoggerWithWriter uses.
func NewHandler(level slog.Level, format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// LevelName is the lower-case name used in log events: debug, info, warn
// or error.
func LevelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// MirrorFunc receives records copied by a mirror handler.
type MirrorFunc func(level slog.Level, component, message string)

// mirror passes every record to next and copies those at or above min to
// fn, tagged with the logger's "component" attribute.
type mirror struct {
	next      slog.Handler
	min       slog.Level
	fn        MirrorFunc
	component string
}

// NewMirrorHandler wraps next so records at or above min are also handed
// to fn. The daemon uses it to forward log lines to WebSocket clients.
func NewMirrorHandler(next slog.Handler, min slog.Level, fn MirrorFunc) slog.Handler {
	return &mirror{next: next, min: min, fn: fn}
}

func (m *mirror) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= m.min || m.next.Enabled(ctx, level)
}

func (m *mirror) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= m.min && m.fn != nil {
		m.fn(r.Level, m.component, r.Message)
	}
	if !m.next.Enabled(ctx, r.Level) {
		return nil
	}
	return m.next.Handle(ctx, r)
}

func (m *mirror) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *m
	c.next = m.next.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "component" {
			c.component = a.Value.String()
		}
	}
	return &c
}

func (m *mirror) WithGroup(name string) slog.Handler {
	c := *m
	c.next = m.next.WithGroup(name)
	return &c
}
