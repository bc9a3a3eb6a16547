// Package recommend reconciles inbound recommendation pushes into the single
// deduplicated set the store surfaces, and drives accept/reject round trips
// with the backend.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/orchestrator"
)

// Merge folds an incoming batch into the current surfaced set.
//
// The result is keyed by recommended product id: at most one entry per
// product survives, and a later delivery for an already-surfaced product
// supersedes the earlier entry in place rather than accumulating or moving.
// Products not previously seen append in batch order.
//
// Merge is pure; neither input slice is modified.
func Merge(current, incoming []basket.Recommendation) []basket.Recommendation {
	merged := append([]basket.Recommendation(nil), current...)
	index := make(map[string]int, len(merged))
	for i, rec := range merged {
		index[rec.ProductID] = i
	}

	for _, rec := range incoming {
		if i, ok := index[rec.ProductID]; ok {
			merged[i] = rec
			continue
		}
		index[rec.ProductID] = len(merged)
		merged = append(merged, rec)
	}
	return merged
}

// Drop removes every entry for the given recommended product id.
// Pure; the input slice is not modified.
func Drop(current []basket.Recommendation, productID string) []basket.Recommendation {
	out := make([]basket.Recommendation, 0, len(current))
	for _, rec := range current {
		if rec.ProductID != productID {
			out = append(out, rec)
		}
	}
	return out
}

// Client is the backend surface the service needs.
type Client interface {
	AcceptRecommendation(ctx context.Context, recommendationID string) (*basket.Item, error)
	RejectRecommendation(ctx context.Context, recommendationID string) error
}

// Dispatcher is the slice of the orchestrator the service uses.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
	Snapshot() basket.State
}

// Service applies the reconciliation rules to inbound channel events and
// operator accept/reject decisions.
type Service struct {
	client Client
	disp   Dispatcher
	logger *slog.Logger
}

// NewService creates a recommendation service.
func NewService(client Client, disp Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, disp: disp, logger: logger}
}

// recommendationsEvent is the wire shape of a recommendations push.
type recommendationsEvent struct {
	Type            string `json:"type"`
	Recommendations []struct {
		ID          string  `json:"id"`
		ProductID   string  `json:"recommended_product_id"`
		ProductName string  `json:"recommended_product_name"`
		Price       float64 `json:"recommended_price"`
		Reason      string  `json:"reason"`
		Status      string  `json:"status"`
	} `json:"recommendations"`
}

// HandleEvent consumes a recommendations channel message and dispatches the
// reconciled set.
func (s *Service) HandleEvent(raw []byte) error {
	var event recommendationsEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode recommendations event: %w", err)
	}
	if event.Type != "recommendations" {
		return nil
	}

	incoming := make([]basket.Recommendation, 0, len(event.Recommendations))
	for _, rec := range event.Recommendations {
		status := basket.RecommendationStatus(rec.Status)
		if status == "" {
			status = basket.RecommendationPending
		}
		incoming = append(incoming, basket.Recommendation{
			ID:          rec.ID,
			ProductID:   rec.ProductID,
			ProductName: rec.ProductName,
			Price:       basket.MoneyFromFloat(rec.Price),
			Reason:      rec.Reason,
			Status:      status,
		})
	}

	merged := Merge(s.disp.Snapshot().Recommendations, incoming)
	s.disp.DispatchToken(s.disp.NewToken(), basket.SetRecommendations{Recommendations: merged})
	return nil
}

// Accept fires the accept mutation and optimistically drops the
// recommendation from the surfaced set. The basket gains only the persisted
// item the server returns, never a synthesized local stand-in, so a failed
// call leaves the basket untouched.
func (s *Service) Accept(ctx context.Context, rec basket.Recommendation) error {
	token := s.disp.NewToken()
	s.disp.DispatchToken(token, basket.SetRecommendations{
		Recommendations: Drop(s.disp.Snapshot().Recommendations, rec.ProductID),
	})

	item, err := s.client.AcceptRecommendation(ctx, rec.ID)
	if err != nil {
		s.logger.Error("accept recommendation failed", "id", rec.ID, "error", err)
		s.disp.DispatchToken(token, basket.SetError{Message: "failed to accept recommendation"})
		return orchestrator.NewTransportError("accept recommendation", err)
	}
	if item != nil {
		item.Origin = basket.OriginConfirmed
		s.disp.DispatchToken(token, basket.AddItem{Item: *item})
	}
	return nil
}

// Reject fires the reject mutation and optimistically drops the
// recommendation from the surfaced set regardless of the call's outcome.
func (s *Service) Reject(ctx context.Context, rec basket.Recommendation) error {
	token := s.disp.NewToken()
	s.disp.DispatchToken(token, basket.SetRecommendations{
		Recommendations: Drop(s.disp.Snapshot().Recommendations, rec.ProductID),
	})

	if err := s.client.RejectRecommendation(ctx, rec.ID); err != nil {
		s.logger.Error("reject recommendation failed", "id", rec.ID, "error", err)
		return orchestrator.NewTransportError("reject recommendation", err)
	}
	return nil
}
