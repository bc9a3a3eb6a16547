package orchestrator

import "time"

// Timer is a cancellable pending callback handle.
type Timer interface {
	// Stop cancels the timer. Returns false if it has already fired.
	Stop() bool
}

// Scheduler schedules deferred callbacks. The verification pending timeout
// and the stream reconnect delay both run through a Scheduler so tests can
// fire and cancel them deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// WallClockScheduler schedules on the process wall clock via time.AfterFunc.
type WallClockScheduler struct{}

// AfterFunc implements Scheduler.
func (WallClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
