package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of FakeTime: 2024-01-01T12:00:00Z.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeTime is a wall clock that only moves when told to.
//
// It satisfies engine.TimeSource. Safe for concurrent use.
type FakeTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeTime creates a clock stopped at start. A zero start means Epoch.
func NewFakeTime(start time.Time) *FakeTime {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeTime{now: start}
}

// Now returns the current fake time.
func (c *FakeTime) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeTime) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps to t.
func (c *FakeTime) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
