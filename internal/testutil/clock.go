// Package testutil provides deterministic time and identifier sources so
// that scenario runs produce byte-identical trace documents.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a DeterministicClock: 2023-11-14T22:13:20Z,
// the same instant as the 1_700_000_000_000 ms clock object scenarios seed.
var Epoch = time.UnixMilli(1_700_000_000_000).UTC()

// DeterministicClock is a wall clock that advances one second per reading.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	ticks int64
}

// NewDeterministicClock creates a clock starting at Epoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(Epoch)
}

// NewDeterministicClockAt creates a clock whose first reading is start.
func NewDeterministicClockAt(start time.Time) *DeterministicClock {
	return &DeterministicClock{start: start}
}

// Now returns the current reading and advances the clock by one second.
// It has the signature of time.Now so it can be passed where one is
// expected.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * time.Second)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock so the next reading is the start time again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
