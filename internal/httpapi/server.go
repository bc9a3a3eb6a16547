// Package httpapi is the terminal's local HTTP surface. The presentation
// layer reads derived state from it and submits operator actions through it;
// it never touches the orchestration core directly.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/orchestrator"
	"github.com/tillworks/basketd/internal/stream"
	"github.com/tillworks/basketd/internal/verification"
)

// Dispatcher is the orchestrator surface the API needs.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
	Snapshot() basket.State
}

// Verifier drives the age-verification flow.
type Verifier interface {
	AddProduct(ctx context.Context, p verification.Product) error
	RequestVerification(ctx context.Context, customerAge int, method basket.VerificationMethod) error
	CancelVerification(ctx context.Context) error
}

// Payments drives the payment flow.
type Payments interface {
	Process(ctx context.Context, method string) error
	OpenModal()
	CloseModal()
}

// Recommender drives recommendation accept/reject.
type Recommender interface {
	Accept(ctx context.Context, rec basket.Recommendation) error
	Reject(ctx context.Context, rec basket.Recommendation) error
}

// FraudAcker acknowledges the currently displayed fraud alert.
type FraudAcker interface {
	Acknowledge()
}

// ItemClient performs the direct item mutations that bypass the
// verification flow.
type ItemClient interface {
	RemoveItem(ctx context.Context, basketID, itemID string) (bool, error)
	UpdateQuantity(ctx context.Context, basketID, itemID string, quantity int) (*basket.Item, error)
}

// CustomerClient resolves operator-entered customer identifiers against the
// backend's customer lookup.
type CustomerClient interface {
	IdentifyCustomer(ctx context.Context, basketID, identifier string) (*basket.Customer, error)
}

// ChannelStates reports realtime channel health.
type ChannelStates interface {
	States() map[string]stream.State
}

// Server wires the handlers to their collaborators.
type Server struct {
	disp      Dispatcher
	verifier  Verifier
	payments  Payments
	recs      Recommender
	fraud     FraudAcker
	items     ItemClient
	customers CustomerClient
	lookup    bool
	channels  ChannelStates
	currency  string
	logger    *slog.Logger
}

// NewServer creates the API server.
func NewServer(
	disp Dispatcher,
	verifier Verifier,
	payments Payments,
	recs Recommender,
	fraud FraudAcker,
	items ItemClient,
	customers CustomerClient,
	lookupEnabled bool,
	channels ChannelStates,
	currency string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		disp:      disp,
		verifier:  verifier,
		payments:  payments,
		recs:      recs,
		fraud:     fraud,
		items:     items,
		customers: customers,
		lookup:    lookupEnabled,
		channels:  channels,
		currency:  currency,
		logger:    logger,
	}
}

// Router mounts all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.GetState)
		r.Get("/healthz", s.GetHealth)
		r.Post("/actions", s.PostAction)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetState returns the full derived state snapshot.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	state := s.disp.Snapshot()
	resp := map[string]any{
		"state": state,
	}
	if state.Basket != nil {
		resp["total_display"] = basket.FormatCurrency(state.Basket.TotalAmount, s.currency)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth reports channel connection states.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": s.channels.States(),
	})
}

// actionRequest is the operator action envelope.
type actionRequest struct {
	Action string `json:"action"`

	ProductID   string  `json:"product_id,omitempty"`
	ProductName string  `json:"product_name,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Quantity    int     `json:"quantity,omitempty"`
	ItemID      string  `json:"item_id,omitempty"`

	CustomerAge int    `json:"customer_age,omitempty"`
	Method      string `json:"method,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`

	RecommendationID string `json:"recommendation_id,omitempty"`
}

// PostAction executes one operator action.
func (s *Server) PostAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.execute(r.Context(), req)
	if err != nil {
		var oerr *orchestrator.OrchestrationError
		switch {
		case errors.As(err, &oerr) && oerr.Code == orchestrator.ErrCodeValidation:
			writeError(w, http.StatusUnprocessableEntity, oerr.Message)
		case orchestrator.IsTransportError(err):
			writeError(w, http.StatusBadGateway, "backend unavailable")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) execute(ctx context.Context, req actionRequest) error {
	switch req.Action {
	case "add_item":
		return s.verifier.AddProduct(ctx, verification.Product{
			ProductID: req.ProductID,
			Name:      req.ProductName,
			Price:     basket.MoneyFromFloat(req.Price),
			Quantity:  req.Quantity,
		})

	case "remove_item":
		return s.removeItem(ctx, req.ItemID)

	case "update_quantity":
		return s.updateQuantity(ctx, req.ItemID, req.Quantity)

	case "verify_age":
		return s.verifier.RequestVerification(ctx, req.CustomerAge, basket.VerificationMethod(req.Method))

	case "cancel_verification":
		return s.verifier.CancelVerification(ctx)

	case "process_payment":
		return s.payments.Process(ctx, req.Method)

	case "open_payment_modal":
		s.payments.OpenModal()
		return nil

	case "close_payment_modal":
		s.payments.CloseModal()
		return nil

	case "acknowledge_fraud_alert":
		s.fraud.Acknowledge()
		return nil

	case "identify_customer":
		return s.identifyCustomer(ctx, req.CustomerID)

	case "clear_customer":
		if !s.lookup {
			return orchestrator.NewValidationError("customer lookup is not enabled on this terminal", nil)
		}
		s.disp.DispatchToken(s.disp.NewToken(), basket.SetCustomer{Customer: nil})
		return nil

	case "accept_recommendation":
		rec, err := s.findRecommendation(req.RecommendationID)
		if err != nil {
			return err
		}
		return s.recs.Accept(ctx, rec)

	case "reject_recommendation":
		rec, err := s.findRecommendation(req.RecommendationID)
		if err != nil {
			return err
		}
		return s.recs.Reject(ctx, rec)

	default:
		return orchestrator.NewValidationError("unknown action: "+req.Action, nil)
	}
}

func (s *Server) identifyCustomer(ctx context.Context, identifier string) error {
	if !s.lookup {
		return orchestrator.NewValidationError("customer lookup is not enabled on this terminal", nil)
	}
	state := s.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}
	if identifier == "" {
		return orchestrator.NewValidationError("customer_id is required", nil)
	}

	customer, err := s.customers.IdentifyCustomer(ctx, state.Basket.ID, identifier)
	if err != nil {
		return err
	}
	if customer == nil {
		return orchestrator.NewValidationError("customer not found", map[string]string{
			"customer_id": identifier,
		})
	}
	s.disp.DispatchToken(s.disp.NewToken(), basket.SetCustomer{Customer: customer})
	return nil
}

func (s *Server) removeItem(ctx context.Context, itemID string) error {
	state := s.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}
	if itemID == "" {
		return orchestrator.NewValidationError("item_id is required", nil)
	}

	if _, err := s.items.RemoveItem(ctx, state.Basket.ID, itemID); err != nil {
		return err
	}
	s.disp.DispatchToken(s.disp.NewToken(), basket.RemoveItem{ItemID: itemID})
	return nil
}

func (s *Server) updateQuantity(ctx context.Context, itemID string, quantity int) error {
	state := s.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}
	if itemID == "" {
		return orchestrator.NewValidationError("item_id is required", nil)
	}

	// Zero or negative quantity means removal, backend included.
	if quantity <= 0 {
		return s.removeItem(ctx, itemID)
	}

	updated, err := s.items.UpdateQuantity(ctx, state.Basket.ID, itemID, quantity)
	if err != nil {
		return err
	}
	token := s.disp.NewToken()
	if updated != nil {
		// The persisted item is authoritative; the backend may have clamped
		// the quantity or repriced the line, and AddItem replaces the entry
		// wholesale by product id.
		item := *updated
		item.Origin = basket.OriginConfirmed
		s.disp.DispatchToken(token, basket.AddItem{Item: item})
		return nil
	}
	s.disp.DispatchToken(token, basket.UpdateQuantity{ItemID: itemID, Quantity: quantity})
	return nil
}

func (s *Server) findRecommendation(id string) (basket.Recommendation, error) {
	if id == "" {
		return basket.Recommendation{}, orchestrator.NewValidationError("recommendation_id is required", nil)
	}
	for _, rec := range s.disp.Snapshot().Recommendations {
		if rec.ID == id {
			return rec, nil
		}
	}
	return basket.Recommendation{}, orchestrator.NewValidationError("unknown recommendation: "+id, nil)
}
