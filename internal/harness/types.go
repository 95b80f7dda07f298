package harness

import (
	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/state"
)

// TraceStep records one executed step.
type TraceStep struct {
	Phase   string         `json:"phase"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`
	Result  map[string]any `json:"result,omitempty"`
	Events  []string       `json:"events,omitempty"`
	Ticks   int            `json:"ticks,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the steps in execution order. Timer ticks are counted,
	// not listed, and display refreshes are omitted.
	Trace []TraceStep `json:"trace"`

	// Errors describes every failed expectation.
	Errors []string `json:"errors,omitempty"`

	// Events is the complete event stream of the run.
	Events []event.Event `json:"-"`

	// Status is the engine status after the last step.
	Status state.Status `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addStep(step TraceStep, events []event.Event) {
	for _, ev := range events {
		switch ev.Tag {
		case event.TimerTick:
			step.Ticks++
		case event.DisplayRefresh:
		default:
			step.Events = append(step.Events, ev.String())
		}
	}
	r.Events = append(r.Events, events...)
	r.Trace = append(r.Trace, step)
}
