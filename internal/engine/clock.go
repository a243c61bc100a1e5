package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Every applied event is stamped with
// the next value, and the journal stores events in that order.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start. Used to resume a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
