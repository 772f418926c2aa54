package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe logical clock for tests. Each call to
// Now advances time by a fixed step, so version timestamps are reproducible
// across runs regardless of wall-clock time.
type DeterministicClock struct {
	mu   sync.Mutex
	cur  time.Time
	step time.Duration
}

// clockEpoch is an arbitrary fixed instant; traces derived from this clock
// compare byte-for-byte against golden files.
var clockEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDeterministicClock creates a clock starting at a fixed epoch,
// advancing one second per Now call.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{cur: clockEpoch, step: time.Second}
}

// Now returns the next tick.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(c.step)
	return c.cur
}

// Reset rewinds the clock to the epoch so a scenario can be replayed with
// identical timestamps.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = clockEpoch
}
