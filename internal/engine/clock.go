package engine

import "sync/atomic"

// Clock hands out submission sequence numbers. Each submitted block gets a
// distinct number, so identical blocks submitted twice still derive
// distinct object ids.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}

// lamport tracks the highest version observed while executing a block.
// Every object the block writes is stamped with max+1.
type lamport struct {
	max uint64
}

func (l *lamport) observe(v uint64) {
	if v > l.max {
		l.max = v
	}
}

func (l *lamport) next() uint64 {
	return l.max + 1
}
