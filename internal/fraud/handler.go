// Package fraud turns inbound fraud-alert channel events into store actions
// and exposes the operator acknowledgment path.
//
// Queueing policy: the store shows the most recently received unacknowledged
// alert. An alert displaced by a newer one is queued (newest first), not
// dropped, so every alert eventually crosses an operator's screen.
// Acknowledgment is local-only; server-side alert state is untouched.
package fraud

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tillworks/basketd/internal/basket"
)

// Dispatcher is the slice of the orchestrator the handler uses.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
}

// Handler consumes fraud-alerts channel messages.
type Handler struct {
	disp   Dispatcher
	logger *slog.Logger
}

// NewHandler creates a fraud alert handler.
func NewHandler(disp Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{disp: disp, logger: logger}
}

// fraudAlertEvent is the wire shape of a fraud alert push.
type fraudAlertEvent struct {
	Type      string            `json:"type"`
	AlertID   string            `json:"alert_id"`
	RuleID    string            `json:"rule_id"`
	Severity  string            `json:"severity"`
	Details   map[string]string `json:"details"`
	Timestamp string            `json:"timestamp"`
}

// HandleEvent decodes a fraud alert and dispatches it to the store.
// Messages of other types are ignored; malformed alerts are an error.
func (h *Handler) HandleEvent(raw []byte) error {
	var event fraudAlertEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode fraud alert: %w", err)
	}
	if event.Type != "fraud_alert" {
		return nil
	}
	if event.AlertID == "" {
		return fmt.Errorf("fraud alert missing alert_id")
	}

	severity, err := basket.ParseSeverity(event.Severity)
	if err != nil {
		return fmt.Errorf("fraud alert %s: %w", event.AlertID, err)
	}

	h.logger.Info("fraud alert received",
		"alert_id", event.AlertID,
		"rule_id", event.RuleID,
		"severity", event.Severity,
	)

	h.disp.DispatchToken(h.disp.NewToken(), basket.PushFraudAlert{Alert: basket.FraudAlert{
		AlertID:   event.AlertID,
		RuleID:    event.RuleID,
		Severity:  severity,
		Details:   event.Details,
		Timestamp: event.Timestamp,
	}})
	return nil
}

// Acknowledge clears the currently displayed alert and surfaces the next
// queued one, if any.
func (h *Handler) Acknowledge() {
	h.disp.DispatchToken(h.disp.NewToken(), basket.AcknowledgeFraudAlert{})
}
