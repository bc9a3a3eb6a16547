// Package stream maintains the terminal's realtime channel connections and
// their lifecycle: connect, deliver frames to the channel's handler, and
// recover from abnormal closure with a fixed-delay reconnect. A deliberate
// teardown never reconnects, and frames from a superseded connection
// generation are discarded.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tillworks/basketd/internal/metrics"
	"github.com/tillworks/basketd/internal/orchestrator"
)

// Channel names, matching the backend plugin topics.
const (
	ChannelRecommendations = "recommendations"
	ChannelFraudAlerts     = "fraud-alerts"
	ChannelSession         = "session"
	ChannelAgeVerification = "age-verification"
)

// DefaultReconnectDelay is the fixed wait before re-dialing after an
// abnormal close. There is no backoff and no retry cap.
const DefaultReconnectDelay = 3 * time.Second

// State is a channel's connection lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnectScheduled
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalJSON renders the state name, for the health endpoint.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Handler consumes raw frames from one channel.
type Handler interface {
	HandleEvent(raw []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(raw []byte) error

func (f HandlerFunc) HandleEvent(raw []byte) error { return f(raw) }

// Conn is a live transport connection for one channel. Frames yields raw
// messages and closes when the connection ends; Err then reports why. A nil
// Err means the close was deliberate or server-graceful.
type Conn interface {
	Frames() <-chan []byte
	Err() error
	Close() error
}

// Transport dials a connection for a named channel.
type Transport interface {
	Dial(ctx context.Context, channel string) (Conn, error)
}

type channelState struct {
	name      string
	transport Transport
	handler   Handler

	state      State
	generation uint64
	conn       Conn
	reconnect  orchestrator.Timer
	deliberate bool
	ctx        context.Context
}

// Supervisor owns every channel's connection lifecycle.
type Supervisor struct {
	mu       sync.Mutex
	channels map[string]*channelState
	sched    orchestrator.Scheduler
	delay    time.Duration
	logger   *slog.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithScheduler overrides the reconnect timer scheduler (tests).
func WithScheduler(s orchestrator.Scheduler) Option {
	return func(sup *Supervisor) { sup.sched = s }
}

// WithReconnectDelay overrides the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(sup *Supervisor) { sup.delay = d }
}

// NewSupervisor creates an empty supervisor. Channels are added with
// Register and opened with Connect.
func NewSupervisor(logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	sup := &Supervisor{
		channels: make(map[string]*channelState),
		sched:    orchestrator.WallClockScheduler{},
		delay:    DefaultReconnectDelay,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(sup)
	}
	return sup
}

// Register adds a channel. Registering is idempotent on the name; the last
// transport and handler win. The channel starts closed.
func (sup *Supervisor) Register(name string, transport Transport, handler Handler) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.channels[name] = &channelState{
		name:      name,
		transport: transport,
		handler:   handler,
		state:     StateClosed,
	}
}

// Connect opens a registered channel. A Connect on a channel that is already
// open or connecting is a no-op. A pending reconnect timer is cancelled
// first so the explicit connect supersedes the scheduled one.
func (sup *Supervisor) Connect(ctx context.Context, name string) error {
	sup.mu.Lock()
	ch, ok := sup.channels[name]
	if !ok {
		sup.mu.Unlock()
		return fmt.Errorf("stream: channel %q not registered", name)
	}
	if ch.state == StateOpen || ch.state == StateConnecting {
		sup.mu.Unlock()
		return nil
	}
	if ch.reconnect != nil {
		ch.reconnect.Stop()
		ch.reconnect = nil
	}
	ch.state = StateConnecting
	ch.deliberate = false
	ch.generation++
	ch.ctx = ctx
	gen := ch.generation
	transport := ch.transport
	sup.mu.Unlock()

	conn, err := transport.Dial(ctx, name)
	if err != nil {
		sup.logger.Warn("channel dial failed", "channel", name, "error", err)
		sup.scheduleReconnect(name, gen)
		return fmt.Errorf("stream: dial %s: %w", name, err)
	}

	sup.mu.Lock()
	if ch.generation != gen {
		// Superseded while dialing; the newer owner runs the channel now.
		sup.mu.Unlock()
		conn.Close()
		return nil
	}
	ch.conn = conn
	ch.state = StateOpen
	sup.mu.Unlock()

	sup.logger.Info("channel connected", "channel", name)
	go sup.readLoop(ch, gen, conn)
	return nil
}

// Disconnect deliberately tears a channel down. Any pending reconnect timer
// is cancelled and the in-flight connection generation is superseded, so
// neither late frames nor closure of the old connection have any effect.
func (sup *Supervisor) Disconnect(name string) {
	sup.mu.Lock()
	ch, ok := sup.channels[name]
	if !ok {
		sup.mu.Unlock()
		return
	}
	ch.deliberate = true
	ch.generation++
	if ch.reconnect != nil {
		ch.reconnect.Stop()
		ch.reconnect = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = StateClosed
	sup.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	sup.logger.Info("channel disconnected", "channel", name)
}

// DisconnectAll tears every channel down deliberately.
func (sup *Supervisor) DisconnectAll() {
	sup.mu.Lock()
	names := make([]string, 0, len(sup.channels))
	for name := range sup.channels {
		names = append(names, name)
	}
	sup.mu.Unlock()
	for _, name := range names {
		sup.Disconnect(name)
	}
}

// StateOf reports a channel's lifecycle state.
func (sup *Supervisor) StateOf(name string) State {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	if ch, ok := sup.channels[name]; ok {
		return ch.state
	}
	return StateClosed
}

// States snapshots every registered channel's state.
func (sup *Supervisor) States() map[string]State {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	out := make(map[string]State, len(sup.channels))
	for name, ch := range sup.channels {
		out[name] = ch.state
	}
	return out
}

func (sup *Supervisor) readLoop(ch *channelState, gen uint64, conn Conn) {
	for raw := range conn.Frames() {
		if sup.superseded(ch, gen) {
			continue
		}
		metrics.StreamEvents.WithLabelValues(ch.name).Inc()
		if err := ch.handler.HandleEvent(Normalize(raw)); err != nil {
			sup.logger.Error("channel event rejected", "channel", ch.name, "error", err)
		}
	}

	err := conn.Err()

	sup.mu.Lock()
	if ch.generation != gen {
		sup.mu.Unlock()
		return
	}
	if ch.deliberate || err == nil {
		ch.state = StateClosed
		ch.conn = nil
		sup.mu.Unlock()
		sup.logger.Info("channel closed", "channel", ch.name)
		return
	}
	sup.mu.Unlock()

	sup.logger.Warn("channel closed abnormally", "channel", ch.name, "error", err)
	sup.scheduleReconnect(ch.name, gen)
}

// scheduleReconnect arms the fixed-delay re-dial for generation gen. It does
// nothing if the generation has been superseded in the meantime.
func (sup *Supervisor) scheduleReconnect(name string, gen uint64) {
	sup.mu.Lock()
	ch, ok := sup.channels[name]
	if !ok || ch.generation != gen {
		sup.mu.Unlock()
		return
	}
	ch.state = StateReconnectScheduled
	ch.conn = nil
	ctx := ch.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ch.reconnect = sup.sched.AfterFunc(sup.delay, func() {
		if err := sup.Connect(ctx, name); err != nil {
			sup.logger.Warn("reconnect failed", "channel", name, "error", err)
		}
	})
	sup.mu.Unlock()

	metrics.StreamReconnects.WithLabelValues(name).Inc()
	sup.logger.Info("reconnect scheduled", "channel", name, "delay", sup.delay)
}

func (sup *Supervisor) superseded(ch *channelState, gen uint64) bool {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	return ch.generation != gen
}
