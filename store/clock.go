package store

import "sync/atomic"

// Clock hands out mutation epochs.
//
// Every mutation is stamped with a strictly increasing epoch from this clock,
// giving middleware a total order that does not depend on wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next epoch and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last epoch handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
