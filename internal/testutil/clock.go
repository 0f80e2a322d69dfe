// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when told to.
//
// Its Now method satisfies clock.Source, so stores can be driven through
// clock skew (including time going backwards) deterministically.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock frozen at start milliseconds.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// NewManualClockNow creates a clock frozen at the real current time.
func NewManualClockNow() *ManualClock {
	return NewManualClock(time.Now().UnixMilli())
}

// Now returns the frozen time in milliseconds.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ms, forwards or backwards.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ms
}

// Advance moves the clock forward by d milliseconds and returns the new time.
func (c *ManualClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}
