package basket

// State is the complete derived read state for one terminal session.
//
// The store is the single source of truth: no other component retains a
// second mutable copy of basket, verification, or fraud-alert data. All
// mutation flows through Reduce, which is pure; callers own concurrency
// (in practice the orchestrator's single-writer loop).
type State struct {
	Basket            *Basket           `json:"basket"`
	VerificationState VerificationState `json:"verificationState"`
	PendingItems      []RestrictedItem  `json:"pendingItems,omitempty"`
	Recommendations   []Recommendation  `json:"recommendations,omitempty"`

	// CurrentAlert is the alert shown to the operator; FraudBacklog holds
	// superseded, still-unacknowledged alerts (newest first).
	CurrentAlert *FraudAlert  `json:"currentAlert,omitempty"`
	FraudBacklog []FraudAlert `json:"fraudBacklog,omitempty"`

	PaymentState     PaymentState `json:"paymentState"`
	ShowPaymentModal bool         `json:"showPaymentModal"`
	ShowThankYou     bool         `json:"showThankYou"`

	Loading bool   `json:"loading"`
	Err     string `json:"error,omitempty"`
}

// InitialState returns the empty session state.
func InitialState() State {
	return State{
		VerificationState: VerificationIdle,
		PaymentState:      PaymentIdle,
	}
}

// OperativeMinimumAge resolves the minimum age an operator must verify
// against: the strictest (maximum) declared minimum over pending items, the
// event-carried minimum when no pending items are locally known, or the
// statutory default.
func (s State) OperativeMinimumAge(eventMinimum int) int {
	if len(s.PendingItems) == 0 {
		if eventMinimum > 0 {
			return eventMinimum
		}
		return DefaultMinimumAge
	}
	minAge := 0
	for _, item := range s.PendingItems {
		age := item.MinimumAge
		if age == 0 {
			age = DefaultMinimumAge
		}
		if age > minAge {
			minAge = age
		}
	}
	return minAge
}
