// Package ratelimit throttles MCP tool calls with per-tool token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited is wrapped by Check when a call is rejected.
var ErrLimited = errors.New("rate limit exceeded")

// Bucket is a token bucket refilled continuously at Rate tokens per second
// up to Burst. It starts full. It is safe for concurrent use.
type Bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewBucket creates a full bucket.
func NewBucket(rate float64, burst int) *Bucket {
	return &Bucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
}

// Take consumes one token and reports whether one was available.
func (b *Bucket) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.last.IsZero() {
		if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
			b.tokens = min(b.burst, b.tokens+b.rate*elapsed)
		}
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tools maps tool names to their buckets. Tools without a bucket are not
// limited.
type Tools map[string]*Bucket

// DefaultTools returns the limits for the sdrun MCP tools. Steps are cheap
// and called in tight loops; full runs rebuild every engine.
func DefaultTools() Tools {
	return Tools{
		"sdrun_scenarios": NewBucket(2, 20),      // 120/minute
		"sdrun_step":      NewBucket(20, 100),    // 1200/minute
		"sdrun_run":       NewBucket(30.0/60, 5), // 30/minute
	}
}

// Check takes a token for tool and returns an error wrapping ErrLimited when
// none is left.
func (t Tools) Check(tool string) error {
	b, ok := t[tool]
	if !ok {
		return nil
	}
	if !b.Take() {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, tool)
	}
	return nil
}
