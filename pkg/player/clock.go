// Package player implements audio playback for the live conversation and
// for one-shot article narration.
//
// Both players schedule against a monotonic playback clock rather than
// wall-clock arrival time. The Scheduler plays a stream of chunks
// back-to-back with no gap or overlap; the ClipPlayer wraps a single
// decoded clip with transport controls.
package player

import (
	"sync"
	"time"
)

// Clock is the playback timeline. Implementations must be monotonic.
type Clock interface {
	// Now returns the elapsed time on the playback timeline.
	Now() time.Duration
}

// NewClock returns a monotonic clock starting at zero.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

type monotonicClock struct {
	start time.Time
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a Clock advanced explicitly. For tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock returns a ManualClock at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}
