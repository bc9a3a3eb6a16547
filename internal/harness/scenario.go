package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tillworks/basketd/internal/basket"
)

// Scenario is a scripted reducer run: a sequence of actions applied to an
// empty session state, plus assertions over the trace and final state.
type Scenario struct {
	// Name uniquely identifies the scenario. It is also the golden file name.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Steps are applied in order, each becoming one trace event.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action. Action is the journal kind name; Payload is
// the action's fields, decoded through the same codec the journal uses.
type Step struct {
	Action  string         `yaml:"action"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the kind name checked by trace_count.
	Action string `yaml:"action,omitempty"`

	// Count is the expected occurrence count for trace_count.
	Count int `yaml:"count,omitempty"`

	// Actions is the expected kind order for trace_order. The match is a
	// subsequence match, not an exact trace match.
	Actions []string `yaml:"actions,omitempty"`

	// Expect holds expected final-state summary values for final_state.
	// Only the listed keys are checked.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type names.
const (
	AssertFinalState = "final_state"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo like "assertion:" fails loudly instead of silently
// skipping checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Action == "" {
			return fmt.Errorf("steps[%d]: action is required", i)
		}
		if _, err := decodeStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(&a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a *Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("action is required for trace_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("actions list is required for trace_order")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// decodeStep turns a scripted step into a concrete action via the journal
// codec, so scenarios exercise exactly the wire format the journal stores.
func decodeStep(step Step) (basket.Action, error) {
	payload := step.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := yamlToJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	action, err := basket.UnmarshalAction(step.Action, raw)
	if err != nil {
		return nil, err
	}
	return action, nil
}
