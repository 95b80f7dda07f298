package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as stable text, one line per step:
//
//	flow start_task task=1 -> ok [TASK_STARTED(task=1) STATE_CHANGED ...]
//
// Args are printed in key order. Timer ticks are summarised as ticks=N.
func FormatTrace(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario %s\n", name)
	for _, step := range result.Trace {
		fmt.Fprintf(&buf, "%s %s", step.Phase, step.Op)
		for _, k := range sortedKeys(step.Args) {
			fmt.Fprintf(&buf, " %s=%v", k, step.Args[k])
		}
		fmt.Fprintf(&buf, " -> %s", step.Outcome)
		for _, k := range sortedKeys(step.Result) {
			fmt.Fprintf(&buf, " %s=%v", k, step.Result[k])
		}
		if step.Ticks > 0 {
			fmt.Fprintf(&buf, " ticks=%d", step.Ticks)
		}
		if len(step.Events) > 0 {
			fmt.Fprintf(&buf, " [%s]", strings.Join(step.Events, " "))
		}
		buf.WriteByte('\n')
	}
	s := result.Status
	fmt.Fprintf(&buf, "final state=%s time_left=%d stage=%d withered=%t pending=%d watered=%d completed=%d/%d\n",
		s.Mode, s.TimeLeftSeconds, s.Plant.Stage, s.Plant.Withered, s.Plant.PendingWater,
		s.Plant.WateredCount, s.Completed, len(s.Tasks))
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result))
}
