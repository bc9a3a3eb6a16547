package harness

import (
	"fmt"

	"github.com/tillworks/basketd/internal/basket"
)

func checkAssertion(a *Assertion, result *Result) error {
	switch a.Type {
	case AssertFinalState:
		return checkFinalState(a, result.Final)
	case AssertTraceCount:
		return checkTraceCount(a, result.Trace)
	case AssertTraceOrder:
		return checkTraceOrder(a, result.Trace)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// finalStateSummary flattens the final state to the keys scenarios may
// assert on. Values are compared as strings so YAML scalars match without
// per-type coercion rules.
func finalStateSummary(state basket.State) map[string]string {
	summary := map[string]string{
		"payment":            string(state.PaymentState),
		"verification":       string(state.VerificationState),
		"error":              state.Err,
		"loading":            fmt.Sprint(state.Loading),
		"show_payment_modal": fmt.Sprint(state.ShowPaymentModal),
		"show_thank_you":     fmt.Sprint(state.ShowThankYou),
		"pending_items":      fmt.Sprint(len(state.PendingItems)),
		"recommendations":    fmt.Sprint(len(state.Recommendations)),
	}
	alerts := len(state.FraudBacklog)
	if state.CurrentAlert != nil {
		alerts++
	}
	summary["alerts"] = fmt.Sprint(alerts)
	if state.Basket != nil {
		summary["status"] = string(state.Basket.Status)
		summary["total"] = fmt.Sprint(int64(state.Basket.TotalAmount))
		summary["items"] = fmt.Sprint(len(state.Basket.Items))
	} else {
		summary["status"] = ""
		summary["total"] = "0"
		summary["items"] = "0"
	}
	return summary
}

func checkFinalState(a *Assertion, state basket.State) error {
	summary := finalStateSummary(state)
	for key, want := range a.Expect {
		got, ok := summary[key]
		if !ok {
			return fmt.Errorf("final_state: unknown key %q", key)
		}
		if got != fmt.Sprint(want) {
			return fmt.Errorf("final_state: %s = %q, want %q", key, got, fmt.Sprint(want))
		}
	}
	return nil
}

func checkTraceCount(a *Assertion, trace []TraceEvent) error {
	count := 0
	for _, event := range trace {
		if event.Kind == a.Action {
			count++
		}
	}
	if count != a.Count {
		return fmt.Errorf("trace_count: %s appeared %d times, want %d", a.Action, count, a.Count)
	}
	return nil
}

// checkTraceOrder verifies the listed kinds appear as a subsequence of the
// trace. Other kinds may be interleaved.
func checkTraceOrder(a *Assertion, trace []TraceEvent) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Actions) && event.Kind == a.Actions[next] {
			next++
		}
	}
	if next != len(a.Actions) {
		return fmt.Errorf("trace_order: %q not found in order (matched %d of %d)",
			a.Actions[next], next, len(a.Actions))
	}
	return nil
}
