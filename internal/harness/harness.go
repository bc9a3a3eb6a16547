package harness

import (
	"encoding/json"
	"fmt"

	"github.com/tillworks/basketd/internal/basket"
)

// TraceEvent summarizes the session state after one step.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Kind         string `json:"kind"`
	Status       string `json:"status,omitempty"`
	Total        int64  `json:"total"`
	Items        int    `json:"items"`
	Payment      string `json:"payment"`
	Verification string `json:"verification"`
	Alerts       int    `json:"alerts"`
	Error        string `json:"error,omitempty"`
}

// Result is a completed scenario run.
type Result struct {
	Trace []TraceEvent
	Final basket.State
}

// Run executes the scenario from an empty session state and returns the
// per-step trace and the final state. Assertions are checked after the run;
// the first failing assertion aborts with an error naming its index.
func Run(scenario *Scenario) (*Result, error) {
	state := basket.InitialState()
	trace := make([]TraceEvent, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		action, err := decodeStep(step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		state = basket.Reduce(state, action)
		trace = append(trace, summarize(int64(i+1), step.Action, state))
	}

	result := &Result{Trace: trace, Final: state}
	for i, assertion := range scenario.Assertions {
		if err := checkAssertion(&assertion, result); err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return result, nil
}

func summarize(seq int64, kind string, state basket.State) TraceEvent {
	event := TraceEvent{
		Seq:          seq,
		Kind:         kind,
		Payment:      string(state.PaymentState),
		Verification: string(state.VerificationState),
		Alerts:       len(state.FraudBacklog),
		Error:        state.Err,
	}
	if state.CurrentAlert != nil {
		event.Alerts++
	}
	if state.Basket != nil {
		event.Status = string(state.Basket.Status)
		event.Total = int64(state.Basket.TotalAmount)
		event.Items = len(state.Basket.Items)
	}
	return event
}

func yamlToJSON(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
