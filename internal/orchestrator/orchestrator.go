// Package orchestrator runs the single-writer dispatch loop at the heart of
// the terminal session.
//
// Every component (stream handlers, timer callbacks, the operator HTTP
// surface) mutates basket state only by enqueuing actions here. The Run
// loop applies them strictly in arrival order, each reduction running to
// completion before the next begins, so no lock guards the state itself.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/metrics"
)

// Journal records applied dispatches. Implemented by the SQLite journal;
// tests substitute in-memory fakes.
type Journal interface {
	Append(ctx context.Context, seq int64, token, kind string, payload []byte) error
}

// Listener observes state snapshots after each applied action. Listeners run
// inside the dispatch loop and must not block; they communicate back only by
// enqueuing further actions.
type Listener func(state basket.State, d Dispatch)

// Orchestrator owns the session state and the dispatch loop.
//
// Thread-safety model:
//   - Dispatch / DispatchToken: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Snapshot: safe from any goroutine
type Orchestrator struct {
	queue   *dispatchQueue
	clock   *Clock
	tokens  TokenGenerator
	journal Journal
	logger  *slog.Logger

	mu        sync.RWMutex
	state     basket.State
	listeners []Listener
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock installs a pre-positioned clock (journal resume).
func WithClock(c *Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTokenGenerator overrides the correlation token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *Orchestrator) { o.tokens = g }
}

// WithJournal installs the action journal. Without one, dispatches are
// applied but not recorded.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithInitialState seeds the store, e.g. with state rebuilt from a journal.
func WithInitialState(s basket.State) Option {
	return func(o *Orchestrator) { o.state = s }
}

// New creates an orchestrator with empty initial state.
func New(logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		queue:  newDispatchQueue(),
		clock:  NewClock(),
		tokens: UUIDv7Generator{},
		logger: logger,
		state:  basket.InitialState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewToken generates a fresh correlation token. Safe from any goroutine.
func (o *Orchestrator) NewToken() string {
	return o.tokens.Generate()
}

// Dispatch enqueues an action under a fresh correlation token.
// Returns false if the orchestrator has been stopped.
func (o *Orchestrator) Dispatch(action basket.Action) bool {
	return o.DispatchToken(o.tokens.Generate(), action)
}

// DispatchToken enqueues an action under an existing correlation token so a
// multi-action flow journals as one trace. Safe from any goroutine.
//
// The seq is stamped when the action is applied, not when it is enqueued, so
// journal order and application order are always identical.
func (o *Orchestrator) DispatchToken(token string, action basket.Action) bool {
	return o.queue.Enqueue(Dispatch{Token: token, Action: action})
}

// Subscribe registers a listener for applied dispatches. Must be called
// before Run starts.
func (o *Orchestrator) Subscribe(l Listener) {
	o.listeners = append(o.listeners, l)
}

// Snapshot returns the current derived read state. The returned value is a
// copy safe to hold across later dispatches.
func (o *Orchestrator) Snapshot() basket.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Clock returns the orchestrator's logical clock.
func (o *Orchestrator) Clock() *Clock {
	return o.clock
}

// QueueLen returns the number of dispatches waiting to be applied.
func (o *Orchestrator) QueueLen() int {
	return o.queue.Len()
}

// Run starts the single-writer dispatch loop and blocks until the context is
// cancelled or Stop is called. Must be called from exactly one goroutine.
//
// Journal failures are logged and the dispatch is still applied: the journal
// is a diagnostic cache, never a gate on the live session.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting")

	for {
		d, ok := o.queue.TryDequeue()
		if ok {
			o.apply(ctx, d)
			continue
		}

		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping: context cancelled")
			o.queue.Close()
			return ctx.Err()

		case <-o.queue.Wait():
			if o.queue.Len() == 0 {
				o.logger.Info("orchestrator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which causes Run to drain and return.
func (o *Orchestrator) Stop() {
	o.queue.Close()
}

// apply journals and reduces a single dispatch, then notifies listeners.
// Called only from the Run goroutine.
func (o *Orchestrator) apply(ctx context.Context, d Dispatch) {
	d.Seq = o.clock.Next()
	kind := d.Action.Kind()

	if o.journal != nil {
		payload, err := basket.MarshalAction(d.Action)
		if err == nil {
			err = o.journal.Append(ctx, d.Seq, d.Token, kind, payload)
		}
		if err != nil {
			// Log and continue: retrying would reorder the journal.
			metrics.JournalAppendFailures.Inc()
			o.logger.Error("journal append failed",
				"error", err,
				"seq", d.Seq,
				"token", d.Token,
				"kind", kind,
			)
		}
	}

	next := basket.Reduce(o.Snapshot(), d.Action)

	o.mu.Lock()
	o.state = next
	o.mu.Unlock()

	metrics.ActionsProcessed.WithLabelValues(kind).Inc()
	o.logger.Debug("action applied", "seq", d.Seq, "token", d.Token, "kind", kind)

	for _, l := range o.listeners {
		l(next, d)
	}
}
