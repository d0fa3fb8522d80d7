package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capture records every log message emitted while it is installed.
// Tests use it to assert on warnings without parsing handler output.
type Capture struct {
	mu      sync.Mutex
	entries []Entry

	prev      slog.Handler
	prevLevel slog.Level
}

// Entry is one captured log call.
type Entry struct {
	Level   slog.Level
	Message string
}

// CaptureForTest swaps the logging sink for a recording handler and
// lowers the level to debug. Call Restore when done, typically via defer.
func CaptureForTest() *Capture {
	c := &Capture{
		prev:      *sink.Load(),
		prevLevel: level.Level(),
	}
	setSink(captureHandler{c})
	level.Set(slog.LevelDebug)
	return c
}

// Restore reinstates the previous sink and level.
func (c *Capture) Restore() {
	setSink(c.prev)
	level.Set(c.prevLevel)
}

// Has reports whether any entry at the given level contains substr.
func (c *Capture) Has(l slog.Level, substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Level == l && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Entries returns a copy of everything captured so far.
func (c *Capture) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

type captureHandler struct {
	c *Capture
}

func (h captureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.entries = append(h.c.entries, Entry{Level: r.Level, Message: r.Message})
	return nil
}

func (h captureHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h captureHandler) WithGroup(string) slog.Handler {
	return h
}
