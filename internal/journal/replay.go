package journal

import (
	"context"
	"fmt"

	"github.com/tillworks/basketd/internal/basket"
)

// Step is one replayed journal entry together with the state it produced.
type Step struct {
	Entry  Entry
	Action basket.Action
	State  basket.State
}

// Result is the outcome of replaying a journal.
type Result struct {
	Steps   []Step
	Final   basket.State
	LastSeq int64
}

// Replay rebuilds session state by re-reducing the journal in sequence
// order. An entry whose kind the build does not know is an error; the
// journal was written by an incompatible version.
func Replay(ctx context.Context, j *Journal) (*Result, error) {
	entries, err := j.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Final: basket.InitialState()}
	state := result.Final
	for _, e := range entries {
		action, err := basket.UnmarshalAction(e.Kind, e.Payload)
		if err != nil {
			return nil, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		state = basket.Reduce(state, action)
		result.Steps = append(result.Steps, Step{Entry: e, Action: action, State: state})
		result.LastSeq = e.Seq
	}
	result.Final = state
	return result, nil
}

// VerifyTotal checks the rebuilt basket against the total-amount invariant:
// the stored total must equal the sum of line subtotals.
func (r *Result) VerifyTotal() error {
	if r.Final.Basket == nil {
		return nil
	}
	var sum basket.Money
	for _, item := range r.Final.Basket.Items {
		sum += item.Subtotal()
	}
	if sum != r.Final.Basket.TotalAmount {
		return fmt.Errorf("total %s diverges from line sum %s",
			r.Final.Basket.TotalAmount, sum)
	}
	return nil
}
