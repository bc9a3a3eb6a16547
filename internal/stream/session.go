package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tillworks/basketd/internal/basket"
)

// Disconnector is the supervisor surface the session monitor needs.
type Disconnector interface {
	DisconnectAll()
}

// Dispatcher is the slice of the orchestrator the session monitor uses.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
}

// SessionMonitor watches the session channel for terminal-session lifecycle
// events. A terminated session clears all local state and tears every
// channel down deliberately, so nothing reconnects afterward. Logout is the
// same path.
type SessionMonitor struct {
	disp   Dispatcher
	conns  Disconnector
	logger *slog.Logger
}

// NewSessionMonitor creates a session monitor.
func NewSessionMonitor(disp Dispatcher, conns Disconnector, logger *slog.Logger) *SessionMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionMonitor{disp: disp, conns: conns, logger: logger}
}

type sessionEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// HandleEvent consumes a session channel message.
func (m *SessionMonitor) HandleEvent(raw []byte) error {
	var event sessionEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode session event: %w", err)
	}

	switch event.Type {
	case "session_terminated", "logout":
		m.terminate(event)
	}
	return nil
}

func (m *SessionMonitor) terminate(event sessionEvent) {
	reason := event.Reason
	if reason == "" {
		reason = "session terminated"
	}
	m.logger.Warn("session ended", "type", event.Type, "reason", reason)

	// ClearBasket resets to the initial state, so the reason goes on after.
	token := m.disp.NewToken()
	m.disp.DispatchToken(token, basket.ClearBasket{})
	m.disp.DispatchToken(token, basket.SetError{Message: reason})

	// Deliberate teardown: no channel reconnects after this.
	m.conns.DisconnectAll()
}
