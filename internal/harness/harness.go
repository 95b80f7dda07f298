package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/state"
	"github.com/roach88/bloom/internal/store"
	"github.com/roach88/bloom/internal/testutil"
)

const defaultEventCapacity = 256

// Harness executes one scenario.
type Harness struct {
	ctx    context.Context
	store  *store.Store
	engine *state.Engine
	bus    *event.Bus
	clock  *testutil.FakeClock
	logger *slog.Logger

	seq        uint64
	persistErr error
	pending    []event.Event
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh in-memory database and a fake clock. An error is
// returned only when the scenario cannot be executed (a setup step fails,
// the store cannot be opened); failed expectations are reported in the
// result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	capacity := scenario.Engine.EventCapacity
	if capacity == 0 {
		capacity = defaultEventCapacity
	}

	h := &Harness{
		ctx:    context.Background(),
		store:  st,
		bus:    event.NewBus(capacity),
		clock:  testutil.NewFakeClock(testutil.Epoch),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts := []state.Option{
		state.WithClock(h.clock),
		state.WithLogger(h.logger),
		state.WithPersister(state.PersisterFunc(h.persist)),
	}
	if scenario.Engine.MaxTasks > 0 {
		opts = append(opts, state.WithMaxTasks(scenario.Engine.MaxTasks))
	}
	if scenario.Engine.LightThreshold > 0 || scenario.Engine.LightReviveMS > 0 {
		threshold := scenario.Engine.LightThreshold
		if threshold == 0 {
			threshold = state.DefaultLightThreshold
		}
		after := state.DefaultReviveAfter
		if scenario.Engine.LightReviveMS > 0 {
			after = time.Duration(scenario.Engine.LightReviveMS) * time.Millisecond
		}
		opts = append(opts, state.WithLightRevive(threshold, after))
	}
	h.engine = state.New(h.bus, opts...)

	result := NewResult()
	if err := h.executeSetup(scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(scenario.Flow, result)

	if h.persistErr != nil {
		result.AddError(fmt.Sprintf("persist snapshot: %v", h.persistErr))
	}
	result.Status = h.engine.Status()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{Store: st, Ctx: h.ctx}) {
		result.AddError(msg)
	}
	return result, nil
}

// persist writes snapshots synchronously so final_state sees every commit.
func (h *Harness) persist(snap state.Snapshot) {
	h.seq++
	if err := h.store.SaveSnapshot(h.ctx, snap, h.seq); err != nil && h.persistErr == nil {
		h.persistErr = err
	}
}

func (h *Harness) executeSetup(setup []Step, result *Result) error {
	for i, step := range setup {
		res, err := h.apply(step)
		result.addStep(traceStep("setup", step, res, err), h.drain())
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Info("setup step completed", "step", i, "op", step.Op)
	}
	return nil
}

func (h *Harness) executeFlow(flow []Step, result *Result) {
	for i, step := range flow {
		res, err := h.apply(step)
		result.addStep(traceStep("flow", step, res, err), h.drain())

		if msg := checkExpect(step, res, err); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
		h.logger.Info("flow step completed", "step", i, "op", step.Op, "outcome", outcome(err))
	}
}

func (h *Harness) apply(step Step) (map[string]any, error) {
	op, ok := ops[step.Op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
	before := h.bus.Evicted()
	res, err := op(h, args(step.Args))
	if h.bus.Evicted() != before {
		return res, fmt.Errorf("event bus overflowed during %s; raise engine.event_capacity", step.Op)
	}
	return res, err
}

// stash moves queued events aside so long operations cannot evict them.
func (h *Harness) stash() {
	h.pending = h.bus.Drain(h.pending)
}

func (h *Harness) drain() []event.Event {
	events := h.bus.Drain(h.pending)
	h.pending = nil
	return events
}

func traceStep(phase string, step Step, res map[string]any, err error) TraceStep {
	return TraceStep{
		Phase:   phase,
		Op:      step.Op,
		Args:    step.Args,
		Outcome: outcome(err),
		Result:  res,
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := state.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

func checkExpect(step Step, res map[string]any, err error) string {
	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	got := outcome(err)
	switch {
	case want == "" && err != nil:
		return fmt.Sprintf("expected success, got %v", err)
	case want != "" && got != want:
		return fmt.Sprintf("expected error %s, got %s", want, got)
	}

	if step.Expect != nil {
		for key, expected := range step.Expect.Result {
			actual, ok := res[key]
			if !ok {
				return fmt.Sprintf("result field %q missing", key)
			}
			if !valuesEqual(actual, expected) {
				return fmt.Sprintf("result field %q = %v, expected %v", key, actual, expected)
			}
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Operations

type opFunc func(h *Harness, a args) (map[string]any, error)

var ops = map[string]opFunc{
	"add_task": func(h *Harness, a args) (map[string]any, error) {
		id, err := h.engine.AddTask(a.str("name", "Untitled"), uint16(a.num("focus", 25)), uint16(a.num("break", 5)))
		if err != nil {
			return nil, err
		}
		return map[string]any{"task_id": id}, nil
	},
	"delete_task": func(h *Harness, a args) (map[string]any, error) {
		return nil, h.engine.DeleteTask(uint32(a.num("task", 0)))
	},
	"clear_tasks": func(h *Harness, _ args) (map[string]any, error) {
		h.engine.ClearAllTasks()
		return nil, nil
	},
	"start_task": func(h *Harness, a args) (map[string]any, error) {
		return nil, h.engine.StartTask(uint32(a.num("task", 0)))
	},
	"toggle_task": func(h *Harness, a args) (map[string]any, error) {
		return nil, h.engine.ToggleTaskComplete(uint32(a.num("task", 0)))
	},
	"select_task": func(h *Harness, a args) (map[string]any, error) {
		return nil, h.engine.SelectTaskForFlip(uint32(a.num("task", 0)))
	},
	"pause": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.PauseTimer()
	},
	"resume": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.ResumeTimer()
	},
	"stop": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.StopTimer()
	},
	"tick": func(h *Harness, a args) (map[string]any, error) {
		n := a.num("count", 1)
		for i := uint64(0); i < n; i++ {
			if err := h.engine.Tick(); err != nil {
				return nil, err
			}
			if i%32 == 31 {
				h.stash()
			}
		}
		return nil, nil
	},
	"advance": func(h *Harness, a args) (map[string]any, error) {
		total := time.Duration(a.num("seconds", 0))*time.Second + time.Duration(a.num("ms", 0))*time.Millisecond
		// one second at a time so a long advance cannot overflow the bus
		for total > 0 {
			d := min(total, time.Second)
			total -= d
			h.engine.Advance(h.clock.Advance(d))
			h.stash()
		}
		return nil, nil
	},
	"flip": func(h *Harness, a args) (map[string]any, error) {
		asserted := a.flag("asserted", true)
		h.bus.Push(event.WithCount(event.FlipDetected, boolCount(asserted)))
		return nil, h.engine.HandleFlip(asserted)
	},
	"confirm": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.ConfirmTaskComplete()
	},
	"cancel": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.CancelTaskComplete()
	},
	"water": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.WaterPlant()
	},
	"kill": func(h *Harness, _ args) (map[string]any, error) {
		h.engine.KillPlant()
		return nil, nil
	},
	"revive": func(h *Harness, _ args) (map[string]any, error) {
		return nil, h.engine.RevivePlant()
	},
	"set_goal": func(h *Harness, a args) (map[string]any, error) {
		h.engine.SetDailyGoal(uint8(a.num("goal", 0)))
		return nil, nil
	},
	"reset_day": func(h *Harness, _ args) (map[string]any, error) {
		h.engine.ResetForNewDay()
		return nil, nil
	},
	"restart_day": func(h *Harness, _ args) (map[string]any, error) {
		h.engine.RestartDay()
		return nil, nil
	},
	"close_day": func(h *Harness, _ args) (map[string]any, error) {
		return map[string]any{"withered": h.engine.CloseDay()}, nil
	},
	"light": func(h *Harness, a args) (map[string]any, error) {
		now := h.clock.Advance(time.Duration(a.num("wait_ms", 0)) * time.Millisecond)
		return map[string]any{"revived": h.engine.HandleLightLevel(int(a.num("value", 0)), now)}, nil
	},
}

func boolCount(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// args wraps YAML-decoded step arguments.
type args map[string]any

func (a args) str(key, def string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return def
}

func (a args) num(key string, def uint64) uint64 {
	if n, ok := toUint(a[key]); ok {
		return n
	}
	return def
}

func (a args) flag(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}
