// Package checkout drives the payment state machine:
//
//	idle → processing → {completed | failed}
//
// completed is terminal for the basket: the reducer marks it PAID, closes
// the payment modal, and raises the thank-you flag in one transition. failed
// keeps the modal open so the operator can retry.
package checkout

import (
	"context"
	"log/slog"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/orchestrator"
)

// Client is the backend surface the payment flow needs.
type Client interface {
	ProcessPayment(ctx context.Context, basketID, employeeID string, amount basket.Money, method string) error
}

// Dispatcher is the slice of the orchestrator the payment flow uses.
type Dispatcher interface {
	DispatchToken(token string, action basket.Action) bool
	NewToken() string
	Snapshot() basket.State
}

// Flow runs payments for the active basket.
type Flow struct {
	client Client
	disp   Dispatcher
	logger *slog.Logger
}

// NewFlow creates a payment flow.
func NewFlow(client Client, disp Dispatcher, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{client: client, disp: disp, logger: logger}
}

// OpenModal raises the payment modal without starting a payment.
func (f *Flow) OpenModal() {
	f.disp.DispatchToken(f.disp.NewToken(), basket.ShowPaymentModal{Visible: true})
}

// CloseModal dismisses the payment modal. A payment already in flight is not
// interrupted; its outcome still lands.
func (f *Flow) CloseModal() {
	f.disp.DispatchToken(f.disp.NewToken(), basket.ShowPaymentModal{Visible: false})
}

// Process submits the basket's full total for payment.
//
// Preconditions are validated locally before anything is dispatched: an
// active unpaid basket, no payment already processing, and no restricted
// items still awaiting verification. Failures of the backend call land the
// machine in failed with the modal still open.
func (f *Flow) Process(ctx context.Context, method string) error {
	state := f.disp.Snapshot()
	if state.Basket == nil {
		return orchestrator.NewValidationError("no active basket", nil)
	}
	if state.Basket.Status == basket.StatusPaid {
		return orchestrator.NewValidationError("basket is already paid", nil)
	}
	if state.PaymentState == basket.PaymentProcessing {
		return orchestrator.NewValidationError("payment already processing", nil)
	}
	if len(state.PendingItems) > 0 {
		return orchestrator.NewValidationError(
			"restricted items awaiting verification",
			map[string]string{"reason": "UNVERIFIED_RESTRICTED_ITEMS"},
		)
	}

	token := f.disp.NewToken()
	f.disp.DispatchToken(token, basket.ShowPaymentModal{Visible: true})
	f.disp.DispatchToken(token, basket.SetPaymentState{State: basket.PaymentProcessing})

	if err := f.client.ProcessPayment(ctx, state.Basket.ID, state.Basket.EmployeeID, state.Basket.TotalAmount, method); err != nil {
		f.logger.Error("payment failed", "basket", state.Basket.ID, "error", err)
		f.disp.DispatchToken(token, basket.SetPaymentState{State: basket.PaymentFailed})
		f.disp.DispatchToken(token, basket.SetError{Message: "payment failed"})
		return orchestrator.NewTransportError("process payment", err)
	}

	f.disp.DispatchToken(token, basket.SetPaymentState{State: basket.PaymentCompleted})
	f.logger.Info("payment completed",
		"basket", state.Basket.ID,
		"amount", state.Basket.TotalAmount,
		"method", method,
	)
	return nil
}
