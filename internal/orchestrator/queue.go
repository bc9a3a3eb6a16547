package orchestrator

import (
	"sync"

	"github.com/tillworks/basketd/internal/basket"
)

// Dispatch is one queued state transition: an action plus its correlation
// token. Seq is stamped by the orchestrator's clock when the dispatch is
// accepted.
type Dispatch struct {
	Seq    int64
	Token  string
	Action basket.Action
}

// dispatchQueue is a thread-safe FIFO queue of pending dispatches.
//
// The queue is unbounded so stream handlers and timer callbacks can always
// enqueue without blocking the goroutine that produced the event. External
// producers enqueue from any goroutine; only the orchestrator's Run loop
// dequeues.
//
// A buffered signal channel (size 1) coalesces wakeups and lets the Run loop
// select against context cancellation instead of blocking on a dequeue.
type dispatchQueue struct {
	mu      sync.Mutex
	pending []Dispatch
	closed  bool
	signal  chan struct{}
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{
		pending: make([]Dispatch, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends a dispatch. Safe from any goroutine.
// Returns false if the queue has been closed.
func (q *dispatchQueue) Enqueue(d Dispatch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, d)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front dispatch without blocking.
func (q *dispatchQueue) TryDequeue() (Dispatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Dispatch{}, false
	}

	d := q.pending[0]

	// Zero the slot so the backing array does not retain the action.
	q.pending[0] = Dispatch{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}

	return d, true
}

// Wait returns the signal channel for select-based waiting. The channel is
// closed when the queue closes, waking all waiters.
func (q *dispatchQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending dispatches.
func (q *dispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close marks the queue closed and wakes all waiters. Idempotent.
func (q *dispatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
