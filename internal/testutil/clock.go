package testutil

import (
	"sync"
	"time"
)

// StepClock is a deterministic time source for store.WithNow.
//
// Every call to Now advances the clock by a fixed step from a fixed base, so
// the same scenario always stamps mutations with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	base  time.Time
	step  time.Duration
	ticks int64
}

// DefaultBase is the base time used when none is given.
var DefaultBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewStepClock creates a clock starting at base that advances by step.
// A zero base selects DefaultBase; a zero step selects one millisecond.
func NewStepClock(base time.Time, step time.Duration) *StepClock {
	if base.IsZero() {
		base = DefaultBase
	}
	if step == 0 {
		step = time.Millisecond
	}
	return &StepClock{base: base, step: step}
}

// Now returns the next timestamp. The first call returns base+step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	return c.base.Add(time.Duration(c.ticks) * c.step)
}

// Ticks returns how many timestamps have been handed out.
func (c *StepClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its base.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
