package basket

// Reduce applies a single action and returns the next state.
//
// Reduce is pure: no I/O, no side effects, no retained references to mutable
// input. Slices are copied before modification so a previous State snapshot
// stays valid after later reductions.
//
// Item mutations against a PAID basket are silent no-ops: once payment
// completes the basket is immutable and late-arriving stream events must not
// corrupt the finished transaction.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case SetBasket:
		b := a.Basket
		b.Items = append([]Item(nil), b.Items...)
		b.TotalAmount = totalOf(b.Items)
		state.Basket = &b
		return state

	case SetCustomer:
		if state.Basket != nil {
			b := *state.Basket
			b.Customer = a.Customer
			state.Basket = &b
		}
		return state

	case AddItem:
		if !mutable(state) {
			return state
		}
		b := *state.Basket
		items := append([]Item(nil), b.Items...)
		replaced := false
		for i, existing := range items {
			if existing.ProductID == a.Item.ProductID {
				// Server-driven update for a product already in the basket:
				// replace the entry wholesale rather than incrementing, so
				// re-delivery can never double count.
				items[i] = a.Item
				replaced = true
				break
			}
		}
		if !replaced {
			items = append(items, a.Item)
		}
		b.Items = items
		b.TotalAmount = totalOf(items)
		state.Basket = &b
		return state

	case RemoveItem:
		if !mutable(state) {
			return state
		}
		b := *state.Basket
		items := make([]Item, 0, len(b.Items))
		for _, item := range b.Items {
			if item.ID != a.ItemID {
				items = append(items, item)
			}
		}
		b.Items = items
		b.TotalAmount = totalOf(items)
		state.Basket = &b
		return state

	case UpdateQuantity:
		if !mutable(state) {
			return state
		}
		if a.Quantity <= 0 {
			return Reduce(state, RemoveItem{ItemID: a.ItemID})
		}
		b := *state.Basket
		items := append([]Item(nil), b.Items...)
		for i, item := range items {
			if item.ID == a.ItemID {
				items[i].Quantity = a.Quantity
				break
			}
		}
		b.Items = items
		// Recompute from the full item set, not incrementally.
		b.TotalAmount = totalOf(items)
		state.Basket = &b
		return state

	case SetVerificationState:
		state.VerificationState = a.State
		return state

	case SetPendingItems:
		state.PendingItems = append([]RestrictedItem(nil), a.Items...)
		return state

	case ClearPendingItems:
		state.PendingItems = nil
		state.VerificationState = VerificationIdle
		return state

	case SetRecommendations:
		state.Recommendations = append([]Recommendation(nil), a.Recommendations...)
		return state

	case PushFraudAlert:
		return pushFraudAlert(state, a.Alert)

	case AcknowledgeFraudAlert:
		if state.CurrentAlert == nil {
			return state
		}
		if len(state.FraudBacklog) == 0 {
			state.CurrentAlert = nil
			state.FraudBacklog = nil
			return state
		}
		next := state.FraudBacklog[0]
		state.CurrentAlert = &next
		state.FraudBacklog = append([]FraudAlert(nil), state.FraudBacklog[1:]...)
		return state

	case SetPaymentState:
		state.PaymentState = a.State
		if a.State == PaymentCompleted {
			// Completed is atomic with the workflow flags and the PAID mark:
			// a snapshot can never show a completed payment with the modal
			// still open or the basket still mutable.
			state.ShowThankYou = true
			state.ShowPaymentModal = false
			if state.Basket != nil {
				b := *state.Basket
				b.Status = StatusPaid
				state.Basket = &b
			}
		}
		return state

	case ShowPaymentModal:
		state.ShowPaymentModal = a.Visible
		return state

	case ShowThankYou:
		state.ShowThankYou = a.Visible
		return state

	case SetError:
		state.Err = a.Message
		return state

	case SetLoading:
		state.Loading = a.Loading
		return state

	case ClearBasket:
		return InitialState()

	default:
		return state
	}
}

// mutable reports whether item mutations may be applied.
func mutable(state State) bool {
	return state.Basket != nil && state.Basket.Status != StatusPaid
}

// totalOf computes the basket total from the full item set.
func totalOf(items []Item) Money {
	var total Money
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// pushFraudAlert applies the alert queueing policy: re-delivery of a known
// alert id supersedes it in place; a new alert becomes current while the
// previously displayed alert moves to the front of the backlog.
func pushFraudAlert(state State, alert FraudAlert) State {
	if state.CurrentAlert != nil && state.CurrentAlert.AlertID == alert.AlertID {
		state.CurrentAlert = &alert
		return state
	}
	for i, queued := range state.FraudBacklog {
		if queued.AlertID == alert.AlertID {
			backlog := append([]FraudAlert(nil), state.FraudBacklog...)
			backlog[i] = alert
			state.FraudBacklog = backlog
			return state
		}
	}
	if state.CurrentAlert == nil {
		state.CurrentAlert = &alert
		return state
	}
	backlog := make([]FraudAlert, 0, len(state.FraudBacklog)+1)
	backlog = append(backlog, *state.CurrentAlert)
	backlog = append(backlog, state.FraudBacklog...)
	state.FraudBacklog = backlog
	state.CurrentAlert = &alert
	return state
}
