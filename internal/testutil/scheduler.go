// Package testutil provides deterministic substitutes for the time-driven
// parts of the orchestration core. Tests fire timers explicitly instead of
// sleeping, so timeout and reconnect behavior is exact and fast.
package testutil

import (
	"sync"
	"time"

	"github.com/tillworks/basketd/internal/orchestrator"
)

// ManualTimer is a timer fired explicitly by the test.
type ManualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool

	// Delay records the duration the component requested, for assertions.
	Delay time.Duration
}

// Stop cancels the timer. Returns false if it already fired.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the callback unless the timer was stopped. Returns whether the
// callback ran.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()

	f()
	return true
}

// Stopped reports whether Stop was called before the timer fired.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// ManualScheduler collects scheduled timers for explicit firing.
// Implements orchestrator.Scheduler.
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc records a timer without starting any clock.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) orchestrator.Timer {
	t := &ManualTimer{f: f, Delay: d}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// Timers returns all timers scheduled so far, in order.
func (s *ManualScheduler) Timers() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ManualTimer(nil), s.timers...)
}

// Len returns the number of timers scheduled so far.
func (s *ManualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// FireAll fires every timer that is still pending, in scheduling order.
// Returns the number of callbacks that ran.
func (s *ManualScheduler) FireAll() int {
	fired := 0
	for _, t := range s.Timers() {
		if t.Fire() {
			fired++
		}
	}
	return fired
}
