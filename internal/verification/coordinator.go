// Package verification drives the age-verification sub-state-machine:
//
//	idle → pending → required → verifying → {verified | failed} → idle
//
// pending is optimistic: it is entered the moment an item-add request leaves
// the terminal while the age-verification capability is active, and it
// auto-expires back to idle after a bounded timeout if the confirming
// restriction event is lost. The timeout is compensation, not an
// acknowledgment, and any real event cancels it first.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/orchestrator"
)

// DefaultPendingTimeout bounds the optimistic pending state.
const DefaultPendingTimeout = 2 * time.Second

// Client is the backend surface the coordinator needs.
type Client interface {
	// AddItem returns (nil, nil) when the item is blocked pending age
	// verification rather than added.
	AddItem(ctx context.Context, basketID, productID, productName string, quantity int, price basket.Money) (*basket.Item, error)
	VerifyAge(ctx context.Context, basketID, verifierID string, customerAge int, method basket.VerificationMethod) error
	CancelAgeVerification(ctx context.Context, basketID, employeeID string) error
}

// Dispatcher is the slice of the orchestrator the coordinator uses.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
	Snapshot() basket.State
}

// Product is an operator add request.
type Product struct {
	ProductID string
	Name      string
	Price     basket.Money
	Quantity  int
}

// Coordinator owns the verification flow. It holds no basket truth, only
// the pending-timeout handle and the last event-carried minimum age, both
// transient working state.
type Coordinator struct {
	client  Client
	disp    Dispatcher
	sched   orchestrator.Scheduler
	timeout time.Duration
	logger  *slog.Logger

	// ageGate is whether the age-verification capability is active for this
	// terminal. When inactive, adds go straight through.
	ageGate bool

	mu           sync.Mutex
	pendingTimer orchestrator.Timer
	eventMinimum int // minimum age carried by the last required event
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithScheduler overrides the timer scheduler (tests).
func WithScheduler(s orchestrator.Scheduler) Option {
	return func(c *Coordinator) { c.sched = s }
}

// WithPendingTimeout overrides the optimistic pending timeout.
func WithPendingTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithAgeGate sets whether the age-verification capability is active.
func WithAgeGate(active bool) Option {
	return func(c *Coordinator) { c.ageGate = active }
}

// NewCoordinator creates a verification coordinator.
func NewCoordinator(client Client, disp Dispatcher, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		client:  client,
		disp:    disp,
		sched:   orchestrator.WallClockScheduler{},
		timeout: DefaultPendingTimeout,
		logger:  logger,
		ageGate: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddProduct submits an item-add request.
//
// With the age gate inactive the item is added directly. With it active the
// flow is optimistic: verification state goes pending before the request,
// and a nil item in the response means the add is blocked awaiting a
// restriction event from the stream.
func (c *Coordinator) AddProduct(ctx context.Context, p Product) error {
	state := c.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	token := c.disp.NewToken()

	if !c.ageGate {
		item, err := c.client.AddItem(ctx, state.Basket.ID, p.ProductID, p.Name, p.Quantity, p.Price)
		if err != nil {
			c.disp.DispatchToken(token, basket.SetError{Message: "failed to add item"})
			return orchestrator.NewTransportError("add item", err)
		}
		if item != nil {
			item.Origin = basket.OriginConfirmed
			c.disp.DispatchToken(token, basket.AddItem{Item: *item})
		}
		return nil
	}

	c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationPending})

	item, err := c.client.AddItem(ctx, state.Basket.ID, p.ProductID, p.Name, p.Quantity, p.Price)
	if err != nil {
		c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationIdle})
		c.disp.DispatchToken(token, basket.SetError{Message: "failed to add item"})
		return orchestrator.NewTransportError("add item", err)
	}

	if item != nil {
		// Not restricted after all: confirm and drop out of pending.
		item.Origin = basket.OriginConfirmed
		c.disp.DispatchToken(token, basket.AddItem{Item: *item})
		c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationIdle})
		return nil
	}

	// Blocked pending verification. Arm the compensating timeout in case
	// the confirming event never arrives.
	c.armPendingTimeout(token)
	return nil
}

// RequestVerification submits the operator's age check. The client-side
// pre-check mirrors server policy: an age below the operative minimum fails
// fast with a validation error and no backend call. The server remains
// authoritative for the final outcome, which arrives on the stream.
func (c *Coordinator) RequestVerification(ctx context.Context, customerAge int, method basket.VerificationMethod) error {
	state := c.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}

	minimum := c.OperativeMinimumAge()
	if customerAge < minimum {
		return orchestrator.NewValidationError(
			fmt.Sprintf("customer age %d below required minimum %d", customerAge, minimum),
			map[string]string{
				"customer_age": fmt.Sprintf("%d", customerAge),
				"minimum_age":  fmt.Sprintf("%d", minimum),
			},
		)
	}

	token := c.disp.NewToken()
	c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationVerifying})

	if err := c.client.VerifyAge(ctx, state.Basket.ID, state.Basket.EmployeeID, customerAge, method); err != nil {
		c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationFailed})
		return orchestrator.NewTransportError("verify age", err)
	}
	return nil
}

// CancelVerification abandons the flow. Pending restricted items are dropped
// from the basket, never added, and the machine returns to idle.
func (c *Coordinator) CancelVerification(ctx context.Context) error {
	state := c.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}

	c.cancelPendingTimer()
	token := c.disp.NewToken()

	if err := c.client.CancelAgeVerification(ctx, state.Basket.ID, state.Basket.EmployeeID); err != nil {
		// Still reset locally: a cancel that fails on the wire must not
		// leave the operator stuck in the flow.
		c.logger.Error("cancel verification failed", "basket", state.Basket.ID, "error", err)
		c.disp.DispatchToken(token, basket.ClearPendingItems{})
		return orchestrator.NewTransportError("cancel verification", err)
	}

	c.disp.DispatchToken(token, basket.ClearPendingItems{})
	return nil
}

// OperativeMinimumAge resolves the minimum the operator must verify against.
func (c *Coordinator) OperativeMinimumAge() int {
	c.mu.Lock()
	eventMin := c.eventMinimum
	c.mu.Unlock()
	return c.disp.Snapshot().OperativeMinimumAge(eventMin)
}

// verificationEvent is the wire shape of age-verification channel messages.
// Restricted items arrive with either camelCase or snake_case minimum-age
// keys depending on the producing plugin version; both are honored.
type verificationEvent struct {
	Type        string `json:"type"`
	EventType   string `json:"event_type"`
	MinimumAge  int    `json:"minimum_age"`
	CustomerAge int    `json:"customer_age"`
	Method      string `json:"verification_method"`
	Reason      string `json:"reason"`

	RestrictedItems []struct {
		ProductID     string  `json:"product_id"`
		Name          string  `json:"name"`
		MinimumAge    int     `json:"minimumAge"`
		AltMinimumAge int     `json:"minimum_age"`
		Category      string  `json:"category"`
		Quantity      int     `json:"quantity"`
		Price         float64 `json:"price"`
	} `json:"restricted_items"`
}

func (e verificationEvent) kind() string {
	if e.Type != "" {
		return e.Type
	}
	return e.EventType
}

// HandleEvent consumes an age-verification channel message. Any real event
// cancels the compensating pending timeout before it fires.
func (c *Coordinator) HandleEvent(raw []byte) error {
	var event verificationEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("decode verification event: %w", err)
	}

	switch event.kind() {
	case "age.verification.required":
		c.handleRequired(event)
	case "age.verification.completed":
		c.handleCompleted(event)
	case "age.verification.failed":
		c.handleFailed(event)
	}
	return nil
}

func (c *Coordinator) handleRequired(event verificationEvent) {
	c.cancelPendingTimer()

	c.mu.Lock()
	c.eventMinimum = event.MinimumAge
	c.mu.Unlock()

	items := make([]basket.RestrictedItem, 0, len(event.RestrictedItems))
	for _, ri := range event.RestrictedItems {
		minAge := ri.MinimumAge
		if minAge == 0 {
			minAge = ri.AltMinimumAge
		}
		items = append(items, basket.RestrictedItem{
			ProductID:  ri.ProductID,
			Name:       ri.Name,
			MinimumAge: minAge,
			Category:   ri.Category,
			Quantity:   ri.Quantity,
			Price:      basket.MoneyFromFloat(ri.Price),
		})
	}

	token := c.disp.NewToken()
	c.disp.DispatchToken(token, basket.SetPendingItems{Items: items})
	c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationRequired})
	c.logger.Info("age verification required", "items", len(items), "minimum_age", event.MinimumAge)
}

// handleCompleted releases the held items. Each pending restricted item is
// submitted individually: one item's failure is logged and must not block
// the rest, and the pending set is cleared when the loop finishes no matter
// how many submissions failed.
func (c *Coordinator) handleCompleted(event verificationEvent) {
	c.cancelPendingTimer()

	state := c.disp.Snapshot()
	token := c.disp.NewToken()
	c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationVerified})

	if state.Basket == nil {
		c.disp.DispatchToken(token, basket.ClearPendingItems{})
		return
	}

	failed := 0
	for _, pending := range state.PendingItems {
		qty := pending.Quantity
		if qty <= 0 {
			qty = 1
		}
		item, err := c.client.AddItem(context.Background(), state.Basket.ID, pending.ProductID, pending.Name, qty, pending.Price)
		if err != nil {
			failed++
			c.logger.Error("post-verification add failed",
				"product", pending.ProductID,
				"error", err,
			)
			continue
		}
		if item != nil {
			item.Origin = basket.OriginConfirmed
			c.disp.DispatchToken(token, basket.AddItem{Item: *item})
		}
	}

	if failed > 0 {
		c.logger.Warn("post-verification batch completed with failures",
			"failed", failed,
			"total", len(state.PendingItems),
		)
		c.disp.DispatchToken(token, basket.SetError{Message: "some verified items could not be added"})
	}

	// Clear regardless of individual failures; also resets state to idle.
	c.disp.DispatchToken(token, basket.ClearPendingItems{})
	c.logger.Info("age verification completed",
		"customer_age", event.CustomerAge,
		"method", event.Method,
		"added", len(state.PendingItems)-failed,
	)
}

func (c *Coordinator) handleFailed(event verificationEvent) {
	c.cancelPendingTimer()

	token := c.disp.NewToken()
	c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationFailed})
	c.disp.DispatchToken(token, basket.SetError{Message: "age verification failed: " + event.Reason})
	// Held items are dropped; the reducer returns the machine to idle so a
	// fresh attempt can start.
	c.disp.DispatchToken(token, basket.ClearPendingItems{})
	c.logger.Warn("age verification failed", "reason", event.Reason)
}

// armPendingTimeout schedules the compensating idle reset for a pending
// state whose confirming event never arrives.
func (c *Coordinator) armPendingTimeout(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	c.pendingTimer = c.sched.AfterFunc(c.timeout, func() {
		if c.disp.Snapshot().VerificationState == basket.VerificationPending {
			c.logger.Warn("pending verification expired without confirming event")
			c.disp.DispatchToken(token, basket.SetVerificationState{State: basket.VerificationIdle})
		}
	})
}

func (c *Coordinator) cancelPendingTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		c.pendingTimer = nil
	}
}
