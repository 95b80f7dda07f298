package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/state"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_GoldenTraces(t *testing.T) {
	for _, name := range []string{
		"scenario_a_start_task",
		"scenario_b_focus_to_break",
		"scenario_d_flip_protocol",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_SetupFailureIsAnError(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "setup references a missing task",
		Setup:       []Step{{Op: "start_task", Args: map[string]any{"task": 7}}},
		Flow:        []Step{{Op: "stop"}},
		Assertions:  []Assertion{{Type: AssertStatus, Expect: map[string]any{"state": "idle"}}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.True(t, state.IsInvalidReference(err))
	assert.Contains(t, err.Error(), "setup step 0 (start_task)")
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "every expectation is wrong",
		Flow: []Step{
			{Op: "resume"},
			{Op: "add_task", Args: map[string]any{"name": "x"}, Expect: &Expect{Error: "CAPACITY_EXCEEDED"}},
			{Op: "add_task", Args: map[string]any{"name": "y"}, Expect: &Expect{Result: map[string]any{"task_id": 9}}},
		},
		Assertions: []Assertion{
			{Type: AssertStatus, Expect: map[string]any{"state": "break"}},
			{Type: AssertEventCount, Tag: "TASK_ADDED", Count: 5},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "flow[0] resume: expected success")
	assert.Contains(t, result.Errors[1], "expected error CAPACITY_EXCEEDED, got ok")
	assert.Contains(t, result.Errors[2], `result field "task_id" = 2, expected 9`)
	assert.Contains(t, result.Errors[3], "state = break")
	assert.Contains(t, result.Errors[4], "5 occurrences of TASK_ADDED")
}

func TestRun_TraceOmitsRefreshAndCountsTicks(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace_shape",
		Description: "ticks are summarised",
		Setup: []Step{
			{Op: "add_task", Args: map[string]any{"name": "t", "focus": 1, "break": 1}},
			{Op: "start_task", Args: map[string]any{"task": 1}},
		},
		Flow:       []Step{{Op: "advance", Args: map[string]any{"seconds": 5}}},
		Assertions: []Assertion{{Type: AssertStatus, Expect: map[string]any{"timeLeft": 55}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	last := result.Trace[2]
	assert.Equal(t, "flow", last.Phase)
	assert.Equal(t, 5, last.Ticks)
	assert.Empty(t, last.Events)

	refreshes := 0
	for _, ev := range result.Events {
		if ev.Tag == event.DisplayRefresh {
			refreshes++
		}
	}
	assert.Positive(t, refreshes, "full event stream keeps refreshes")
}

func TestRun_BusOverflowIsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "overflow",
		Description: "a tiny bus cannot hold one step's events",
		Engine:      EngineConfig{EventCapacity: 2},
		Flow:        []Step{{Op: "add_task", Args: map[string]any{"name": "x"}}},
		Assertions:  []Assertion{{Type: AssertStatus, Expect: map[string]any{"state": "idle"}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "event bus overflowed during add_task")
}

func TestRun_PersistsEveryCommit(t *testing.T) {
	scenario := &Scenario{
		Name:        "persist",
		Description: "snapshots reach the store",
		Flow: []Step{
			{Op: "set_goal", Args: map[string]any{"goal": 4}},
			{Op: "add_task", Args: map[string]any{"name": "persisted", "focus": 30, "break": 10}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "plant_state", Where: map[string]any{"id": 1}, Expect: map[string]any{"daily_goal": 4, "next_task_id": 2}},
			{Type: AssertFinalState, Table: "tasks", Where: map[string]any{"id": 1}, Expect: map[string]any{"name": "persisted", "focus_minutes": 30}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
