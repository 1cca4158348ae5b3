package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recordstore/internal/facade"
)

// Scenario defines a conformance test scenario: a sequence of façade operations with
// expected outcomes, plus assertions over the resulting trace and stored rows.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden trace file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup steps establish initial state. Each must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state, row_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation sent through the façade.
type Step struct {
	Kind facade.Kind `yaml:"kind"`
	Verb facade.Verb `yaml:"verb"`

	// Org is the organization the request is scoped to. Empty tests the tenant guard.
	Org   string `yaml:"org"`
	Actor string `yaml:"actor,omitempty"`

	// Payload is the operation payload. String values may reference earlier results as
	// ${name.path}, where name is a save_as label and path walks the result JSON.
	Payload map[string]any `yaml:"payload,omitempty"`

	// SaveAs stores the step result under a label for later templates.
	SaveAs string `yaml:"save_as,omitempty"`

	// Expect validates the response. Nil means no validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Action is the trace name of the step, e.g. "entity.upsert".
func (s Step) Action() string {
	return string(s.Kind) + "." + string(s.Verb)
}

// ExpectClause specifies the expected response.
type ExpectClause struct {
	// Case is "ok" or the expected error kind (e.g. "TypeMismatch").
	Case string `yaml:"case"`

	// Field is the expected offending field of an error.
	Field string `yaml:"field,omitempty"`

	// Result contains expected result values. This is a subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// CaseOK is the expect case of a successful response.
const CaseOK = "ok"

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action appears in the trace, optionally with a case
	// - "trace_order": actions appear in order
	// - "trace_count": an action appears exactly Count times
	// - "final_state": exactly one row matches Where and has the Expect values
	// - "row_count": exactly Count rows match Where
	Type string `yaml:"type"`

	// Action is the trace action name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Case optionally narrows trace_contains to one outcome.
	Case string `yaml:"case,omitempty"`

	// Table is the table name (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies equality filters. Values may use templates.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

var saveLabel = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	check := func(section string, steps []Step) error {
		for i, step := range steps {
			if step.Kind == "" || step.Verb == "" {
				return fmt.Errorf("%s[%d]: kind and verb are required", section, i)
			}
			if step.SaveAs != "" {
				if !saveLabel.MatchString(step.SaveAs) {
					return fmt.Errorf("%s[%d]: save_as %q must be an identifier", section, i, step.SaveAs)
				}
				if labels[step.SaveAs] {
					return fmt.Errorf("%s[%d]: save_as %q is already used", section, i, step.SaveAs)
				}
				labels[step.SaveAs] = true
			}
			if step.Expect != nil && step.Expect.Case == "" {
				return fmt.Errorf("%s[%d].expect: case is required", section, i)
			}
		}
		return nil
	}
	if err := check("setup", s.Setup); err != nil {
		return err
	}
	if err := check("flow", s.Flow); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
