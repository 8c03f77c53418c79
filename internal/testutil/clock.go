package testutil

import (
	"sync"
	"time"
)

// ClockBase is the first instant a Clock returns.
var ClockBase = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock hands out strictly increasing capture timestamps for tests.
//
// Each call to Next advances by Step from ClockBase, so tests can stamp
// writes on either side in a known global order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	n    int64
	Step time.Duration
}

// NewClock creates a clock that advances one second per tick.
//
// The first call to Next() returns ClockBase + 1s.
func NewClock() *Clock {
	return &Clock{Step: time.Second}
}

// Next advances and returns the next timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return ClockBase.Add(time.Duration(c.n) * c.Step)
}

// Current returns the last timestamp handed out without advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClockBase.Add(time.Duration(c.n) * c.Step)
}

// Reset rewinds the clock to ClockBase.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
