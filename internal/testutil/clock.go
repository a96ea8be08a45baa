package testutil

import (
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when a test advances it.
//
// Components accept a `func() time.Time`; pass clock.Now to make TTLs and
// dedupe windows deterministic.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default start time for manual clocks.
var Epoch = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

// NewManualClock creates a clock pinned at start. A zero start uses Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{now: start}
}

// Now returns the current pinned time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Polling bounds for require.Eventually in tests that wait on goroutines.
const (
	WaitTimeout  = 2 * time.Second
	PollInterval = 5 * time.Millisecond
)
