// Package logging wraps log/slog with component-tagged loggers. Loggers
// obtained via For are created at package init time, long before main has
// parsed any config, so they route through a swappable sink rather than
// binding a handler directly.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level slog.LevelVar
	sink  atomic.Pointer[slog.Handler]
)

func init() {
	setSink(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
}

func setSink(h slog.Handler) {
	sink.Store(&h)
}

// Init configures the process-wide log output. levelStr is one of
// "debug", "info", "warn", "error"; format is "text" or "json".
func Init(levelStr, format string) {
	level.Set(ParseLevel(levelStr))
	opts := &slog.HandlerOptions{Level: &level}
	if strings.EqualFold(format, "json") {
		setSink(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		setSink(slog.NewTextHandler(os.Stderr, opts))
	}
}

// SetLevel changes the log level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
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

// For returns a logger tagged with the given component name. The logger
// follows sink swaps made after it was created, so package-level logger
// variables pick up Init and CaptureForTest immediately.
func For(component string) *slog.Logger {
	return slog.New(sinkHandler{component: component})
}

type sinkHandler struct {
	component string
}

func (h sinkHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return (*sink.Load()).Enabled(ctx, l)
}

func (h sinkHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return (*sink.Load()).Handle(ctx, r)
}

func (h sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h sinkHandler) WithGroup(name string) slog.Handler {
	return h
}
