// Package clock produces collection version stamps: wall-clock milliseconds
// that never repeat and never go backwards for a given (tenant, resource).
//
// Stamps double as "last modified" markers and as implicit row versions.
// The candidate for a new stamp is always max(now, last+1), so a burst of
// writes within one millisecond slides into the future, and a wall clock
// that steps backwards never produces an older stamp.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source returns the current wall-clock time in milliseconds.
type Source func() int64

// Now is the default Source.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Next returns the stamp that follows last given the current time.
// Calls are pure; callers install the result atomically.
func Next(last, now int64) int64 {
	return max(now, last+1)
}

// Key identifies one collection version stamp.
type Key struct {
	Tenant   string
	Resource string
}

// Keyed is an in-process version clock: an explicit map from Key to the
// last issued stamp, advanced with a compare-and-swap retry loop.
//
// Thread-safety: Keyed is safe for concurrent use. Distinct keys never
// contend; the same key is linearizable.
type Keyed struct {
	now   Source
	mu    sync.RWMutex
	stamp map[Key]*atomic.Int64
}

// NewKeyed creates a keyed clock reading time from src (Now if nil).
func NewKeyed(src Source) *Keyed {
	if src == nil {
		src = Now
	}
	return &Keyed{now: src, stamp: make(map[Key]*atomic.Int64)}
}

// slot returns the counter for k, creating it on first write.
func (c *Keyed) slot(k Key) *atomic.Int64 {
	c.mu.RLock()
	s, ok := c.stamp[k]
	c.mu.RUnlock()
	if ok {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.stamp[k]; !ok {
		s = &atomic.Int64{}
		c.stamp[k] = s
	}
	return s
}

// Next issues a new stamp for k, strictly greater than any stamp issued
// for k before.
func (c *Keyed) Next(k Key) int64 {
	s := c.slot(k)
	for {
		last := s.Load()
		candidate := Next(last, c.now())
		if s.CompareAndSwap(last, candidate) {
			return candidate
		}
	}
}

// Current returns the last stamp issued for k. A key that was never
// written reads as the current time; the read does not store anything.
func (c *Keyed) Current(k Key) int64 {
	c.mu.RLock()
	s, ok := c.stamp[k]
	c.mu.RUnlock()
	if !ok {
		return c.now()
	}
	if v := s.Load(); v != 0 {
		return v
	}
	return c.now()
}

// Reset forgets every stamp.
func (c *Keyed) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamp = make(map[Key]*atomic.Int64)
}
