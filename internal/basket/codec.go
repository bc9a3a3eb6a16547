package basket

import (
	"encoding/json"
	"fmt"
)

// MarshalAction serializes an action to its journal payload.
// The kind is stored separately by the journal; the payload holds only the
// action's own fields.
func MarshalAction(action Action) ([]byte, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action %s: %w", action.Kind(), err)
	}
	return payload, nil
}

// UnmarshalAction decodes a journaled action from its kind and payload.
// Unknown kinds are an error: the journal format is versioned by these names
// and a mismatch means the journal was written by an incompatible build.
func UnmarshalAction(kind string, payload []byte) (Action, error) {
	var (
		action Action
		err    error
	)
	switch kind {
	case KindSetBasket:
		action, err = decode[SetBasket](payload)
	case KindSetCustomer:
		action, err = decode[SetCustomer](payload)
	case KindAddItem:
		action, err = decode[AddItem](payload)
	case KindRemoveItem:
		action, err = decode[RemoveItem](payload)
	case KindUpdateQuantity:
		action, err = decode[UpdateQuantity](payload)
	case KindSetVerificationState:
		action, err = decode[SetVerificationState](payload)
	case KindSetPendingItems:
		action, err = decode[SetPendingItems](payload)
	case KindClearPendingItems:
		action = ClearPendingItems{}
	case KindSetRecommendations:
		action, err = decode[SetRecommendations](payload)
	case KindPushFraudAlert:
		action, err = decode[PushFraudAlert](payload)
	case KindAcknowledgeFraudAlert:
		action = AcknowledgeFraudAlert{}
	case KindSetPaymentState:
		action, err = decode[SetPaymentState](payload)
	case KindShowPaymentModal:
		action, err = decode[ShowPaymentModal](payload)
	case KindShowThankYou:
		action, err = decode[ShowThankYou](payload)
	case KindSetError:
		action, err = decode[SetError](payload)
	case KindSetLoading:
		action, err = decode[SetLoading](payload)
	case KindClearBasket:
		action = ClearBasket{}
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal action %s: %w", kind, err)
	}
	return action, nil
}

func decode[T Action](payload []byte) (Action, error) {
	var a T
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, err
	}
	return a, nil
}
