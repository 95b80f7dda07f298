package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bloom/internal/event"
)

// Scenario is one behavioural test: a flow of engine operations and
// assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Engine overrides engine construction parameters.
	Engine EngineConfig `yaml:"engine,omitempty"`

	// Setup establishes initial state. Every setup step must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the behaviour under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the events and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// EngineConfig holds engine parameters. Zero values keep the defaults.
type EngineConfig struct {
	MaxTasks       int `yaml:"max_tasks,omitempty"`
	EventCapacity  int `yaml:"event_capacity,omitempty"`
	LightThreshold int `yaml:"light_threshold,omitempty"`
	LightReviveMS  int `yaml:"light_revive_ms,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op names the operation (add_task, start_task, advance, flip, ...).
	Op string `yaml:"op"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Result is a subset of the step's result values.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the run after the last step.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Tag is the event tag name (event_contains, event_count).
	Tag string `yaml:"tag,omitempty"`

	// Tags is the expected first-occurrence order (event_order).
	Tags []string `yaml:"tags,omitempty"`

	// Payload narrows event_contains: task, count or stage.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty"`

	// Table and Where select a persisted row (final_state).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected values (status, final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus        = "status"
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields, unknown ops and malformed assertions are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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
	if s.Engine.MaxTasks < 0 || s.Engine.MaxTasks > 255 {
		return fmt.Errorf("engine.max_tasks must be in [0,255], got %d", s.Engine.MaxTasks)
	}
	if s.Engine.EventCapacity < 0 {
		return fmt.Errorf("engine.event_capacity must be non-negative")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Error != "" {
			return fmt.Errorf("setup[%d]: setup steps cannot expect errors", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Op == "" {
		return fmt.Errorf("op is required")
	}
	if _, ok := ops[step.Op]; !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStatus:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for status", index)
		}
	case AssertEventContains, AssertEventCount:
		if _, ok := parseTag(a.Tag); !ok {
			return fmt.Errorf("assertions[%d]: unknown event tag %q", index, a.Tag)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertEventOrder:
		if len(a.Tags) == 0 {
			return fmt.Errorf("assertions[%d]: tags list is required for event_order", index)
		}
		for _, name := range a.Tags {
			if _, ok := parseTag(name); !ok {
				return fmt.Errorf("assertions[%d]: unknown event tag %q", index, name)
			}
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func parseTag(name string) (event.Tag, bool) {
	for _, tag := range event.Tags() {
		if tag.String() == name {
			return tag, true
		}
	}
	return event.None, false
}
