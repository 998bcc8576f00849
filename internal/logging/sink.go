package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Level is the severity of a runner diagnostic.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Sink receives diagnostics from the scenario runner. Diagnostics describe
// partial results (missing scenarios, unresolved equations); they are never
// errors.
type Sink interface {
	Log(level Level, msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level Level, msg string)

// Log implements Sink.
func (f SinkFunc) Log(level Level, msg string) { f(level, msg) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Level, string) {})

type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink forwards diagnostics to logger. A nil logger uses
// slog.Default().
func NewSlogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogSink{logger: logger}
}

func (s *slogSink) Log(level Level, msg string) {
	s.logger.Log(context.Background(), level.slogLevel(), msg, "component", "runner")
}

func (l Level) slogLevel() slog.Level {
	if l == LevelError {
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Entry is one collected diagnostic.
type Entry struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Collector keeps diagnostics in memory and optionally forwards them.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	next    Sink
}

// NewCollector creates a collector forwarding to next, which may be nil.
func NewCollector(next Sink) *Collector {
	return &Collector{next: next}
}

// Log implements Sink.
func (c *Collector) Log(level Level, msg string) {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{Level: level, Message: msg})
	c.mu.Unlock()

	if c.next != nil {
		c.next.Log(level, msg)
	}
}

// Entries returns a copy of the collected diagnostics.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Messages returns the messages logged at level.
func (c *Collector) Messages(level Level) []string {
	var out []string
	for _, e := range c.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether any message at level contains substr.
func (c *Collector) Contains(level Level, substr string) bool {
	for _, msg := range c.Messages(level) {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Reset drops all collected diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
