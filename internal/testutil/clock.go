package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a StepClock.
var Epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// StepClock is a deterministic clock for tests: every call to Now returns the previous
// time plus a fixed step, so created_at ordering follows call order.
//
// Unlike store.SystemClock, StepClock can be reset for test reuse.
// This enables the same test scenario to run multiple times with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewStepClock creates a clock starting at Epoch with a one-second step.
//
// The first call to Now() returns Epoch.
func NewStepClock() *StepClock {
	return NewStepClockAt(Epoch, time.Second)
}

// NewStepClockAt creates a clock starting at start and advancing by step.
// A non-positive step freezes the clock.
func NewStepClockAt(start time.Time, step time.Duration) *StepClock {
	if step < 0 {
		step = 0
	}
	return &StepClock{start: start.UTC(), step: step}
}

// Now returns the current tick's time and advances the clock.
//
// Implements store.Clock interface.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Peek returns the time the next call to Now will return, without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.ticks) * c.step)
}

// Reset rewinds the clock to its start time.
//
// Used for test reuse. After Reset(), the next call to Now() returns the start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
