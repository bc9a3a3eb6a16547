package orchestrator

import "sync/atomic"

// Clock is a monotonic logical clock. Every accepted dispatch is stamped
// with a strictly increasing seq so the journal reflects exact application
// order and replay reproduces it without wall-clock races.
//
// Safe for concurrent use; in practice only the dispatch path calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific sequence number.
// Used when reopening a session journal mid-session.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the clock's position without advancing it.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
