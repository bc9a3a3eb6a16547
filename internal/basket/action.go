package basket

// Action is a single state transition request for the store.
//
// Actions are the only way any component mutates basket state. They are
// dispatched through the orchestrator's single-writer loop, so each Reduce
// call runs to completion before the next action is applied.
//
// Kind returns a stable wire name used for journaling and metrics.
type Action interface {
	Kind() string
}

// Action kind names. These are journaled, so they are part of the on-disk
// format and must not change meaning.
const (
	KindSetBasket             = "set_basket"
	KindSetCustomer           = "set_customer"
	KindAddItem               = "add_item"
	KindRemoveItem            = "remove_item"
	KindUpdateQuantity        = "update_quantity"
	KindSetVerificationState  = "set_verification_state"
	KindSetPendingItems       = "set_pending_items"
	KindClearPendingItems     = "clear_pending_items"
	KindSetRecommendations    = "set_recommendations"
	KindPushFraudAlert        = "push_fraud_alert"
	KindAcknowledgeFraudAlert = "acknowledge_fraud_alert"
	KindSetPaymentState       = "set_payment_state"
	KindShowPaymentModal      = "show_payment_modal"
	KindShowThankYou          = "show_thank_you"
	KindSetError              = "set_error"
	KindSetLoading            = "set_loading"
	KindClearBasket           = "clear_basket"
)

// SetBasket replaces the basket wholesale (transaction start or refresh).
// Verification and payment sub-states are untouched.
type SetBasket struct {
	Basket Basket `json:"basket"`
}

func (SetBasket) Kind() string { return KindSetBasket }

// SetCustomer attaches or clears the basket's customer reference.
type SetCustomer struct {
	Customer *Customer `json:"customer"`
}

func (SetCustomer) Kind() string { return KindSetCustomer }

// AddItem inserts a server-confirmed or optimistic item. An existing entry
// with the same product id is replaced wholesale, never incremented locally.
type AddItem struct {
	Item Item `json:"item"`
}

func (AddItem) Kind() string { return KindAddItem }

// RemoveItem removes an item by identifier. Unknown ids are a no-op.
type RemoveItem struct {
	ItemID string `json:"itemId"`
}

func (RemoveItem) Kind() string { return KindRemoveItem }

// UpdateQuantity sets an item's quantity. Quantity <= 0 removes the item.
type UpdateQuantity struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

func (UpdateQuantity) Kind() string { return KindUpdateQuantity }

// SetVerificationState moves the age-verification machine.
type SetVerificationState struct {
	State VerificationState `json:"state"`
}

func (SetVerificationState) Kind() string { return KindSetVerificationState }

// SetPendingItems records the restricted items awaiting verification.
type SetPendingItems struct {
	Items []RestrictedItem `json:"items"`
}

func (SetPendingItems) Kind() string { return KindSetPendingItems }

// ClearPendingItems drops all pending restricted items. The reducer also
// resets verification state to idle so pending items are never stranded
// mid-flow.
type ClearPendingItems struct{}

func (ClearPendingItems) Kind() string { return KindClearPendingItems }

// SetRecommendations replaces the surfaced recommendation set. The caller
// (RecommendationReconciler) has already deduplicated by product id.
type SetRecommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
}

func (SetRecommendations) Kind() string { return KindSetRecommendations }

// PushFraudAlert delivers an inbound fraud alert. Re-delivery of the same
// alert id supersedes the earlier copy in place; a genuinely new alert
// becomes current and the previously displayed alert is queued, not dropped.
type PushFraudAlert struct {
	Alert FraudAlert `json:"alert"`
}

func (PushFraudAlert) Kind() string { return KindPushFraudAlert }

// AcknowledgeFraudAlert clears the currently displayed alert and surfaces
// the next queued one, if any. Acknowledgment is local-only.
type AcknowledgeFraudAlert struct{}

func (AcknowledgeFraudAlert) Kind() string { return KindAcknowledgeFraudAlert }

// SetPaymentState moves the payment machine. Transitioning to completed also
// sets ShowThankYou, clears ShowPaymentModal, and marks the basket PAID in
// the same reduction.
type SetPaymentState struct {
	State PaymentState `json:"state"`
}

func (SetPaymentState) Kind() string { return KindSetPaymentState }

// ShowPaymentModal toggles the payment modal workflow flag.
type ShowPaymentModal struct {
	Visible bool `json:"visible"`
}

func (ShowPaymentModal) Kind() string { return KindShowPaymentModal }

// ShowThankYou toggles the post-payment thank-you workflow flag.
type ShowThankYou struct {
	Visible bool `json:"visible"`
}

func (ShowThankYou) Kind() string { return KindShowThankYou }

// SetError records a non-fatal error message for operator display.
type SetError struct {
	Message string `json:"message"`
}

func (SetError) Kind() string { return KindSetError }

// SetLoading toggles the in-flight request flag.
type SetLoading struct {
	Loading bool `json:"loading"`
}

func (SetLoading) Kind() string { return KindSetLoading }

// ClearBasket resets the store to its initial empty state. Used on logout,
// session termination, and post-payment reset.
type ClearBasket struct{}

func (ClearBasket) Kind() string { return KindClearBasket }
