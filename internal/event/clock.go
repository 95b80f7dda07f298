package event

import "sync/atomic"

// Clock is a monotonic logical clock used to stamp events.
//
// Ordering uses this sequence, never wall-clock time, so two events pushed
// within the same millisecond still compare deterministically.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
