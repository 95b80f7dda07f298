package state

import (
	"log/slog"
	"time"

	"github.com/roach88/bloom/internal/event"
)

const (
	// DefaultTickInterval is one countdown unit.
	DefaultTickInterval = time.Second

	// DefaultLightThreshold is the light reading that starts a revive.
	DefaultLightThreshold = 3000

	// DefaultReviveAfter is how long the light must stay above threshold.
	DefaultReviveAfter = 3 * time.Second

	maxCount = ^uint8(0)
)

// Clock supplies wall time for countdown baselines and light exposure.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine owns tasks, the focus session and the plant.
type Engine struct {
	tasks  taskList
	nextID uint32

	mode       Mode
	pausedFrom Mode
	activeID   uint32
	selectedID uint32
	timeLeft   uint32
	totalTime  uint32
	pausedLeft uint32
	waiting    bool
	lastTick   time.Time

	plant Plant

	// light revive window
	reviving    bool
	reviveStart time.Time

	// previous plant view, for deriving watered/revived/bloomed events
	lastWatered uint8
	wasWithered bool
	bloomShown  bool

	bus            *event.Bus
	persister      Persister
	clock          Clock
	logger         *slog.Logger
	tickInterval   time.Duration
	lightThreshold int
	reviveAfter    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTasks sets the task capacity. Default: DefaultMaxTasks.
func WithMaxTasks(n int) Option {
	return func(e *Engine) {
		e.tasks = newTaskList(n)
	}
}

// WithPersister sets the snapshot sink. Default: discard.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		if p != nil {
			e.persister = p
		}
	}
}

// WithClock sets the wall clock. Default: time.Now.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTickInterval sets the length of one countdown unit for Advance.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithLightRevive sets the light threshold and the exposure needed to
// revive a withered plant.
func WithLightRevive(threshold int, after time.Duration) Option {
	return func(e *Engine) {
		e.lightThreshold = threshold
		if after >= 0 {
			e.reviveAfter = after
		}
	}
}

// New creates an Idle engine with no tasks that emits onto bus.
// A nil bus gets a private bus of DefaultCapacity.
func New(bus *event.Bus, opts ...Option) *Engine {
	if bus == nil {
		bus = event.NewBus(event.DefaultCapacity)
	}
	e := &Engine{
		tasks:          newTaskList(DefaultMaxTasks),
		nextID:         1,
		bus:            bus,
		persister:      nopPersister{},
		clock:          systemClock{},
		logger:         slog.Default(),
		tickInterval:   DefaultTickInterval,
		lightThreshold: DefaultLightThreshold,
		reviveAfter:    DefaultReviveAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastTick = e.clock.Now()
	return e
}

// Restore replaces the engine's state with a persisted snapshot.
//
// Tasks beyond capacity, tasks with a zero or duplicate id are dropped.
// Zero durations fall back to 25/5 minutes. The session always restarts:
// Withered if the plant is withered, Idle otherwise. No events are emitted
// and nothing is saved.
func (e *Engine) Restore(s Snapshot) {
	e.tasks.clear()
	for _, t := range s.Tasks {
		if t.ID == 0 || e.tasks.index(t.ID) >= 0 {
			continue
		}
		t.Name = NormalizeName(t.Name)
		if t.FocusMinutes == 0 {
			t.FocusMinutes = 25
		}
		if t.BreakMinutes == 0 {
			t.BreakMinutes = 5
		}
		if !e.tasks.append(t) {
			e.logger.Warn("restored task list truncated", "capacity", e.tasks.cap(), "stored", len(s.Tasks))
			break
		}
	}

	e.nextID = s.NextTaskID
	if maxID := e.tasks.maxID(); e.nextID <= maxID {
		e.nextID = maxID + 1
	}
	if e.nextID == 0 {
		e.nextID = 1
	}

	e.plant = Plant{
		Stage:        min(s.Stage, MaxStage),
		Withered:     s.Withered,
		PendingWater: s.PendingWater,
		WateredCount: s.WateredCount,
		DailyGoal:    s.DailyGoal,
		SessionGoal:  s.SessionGoal,
	}

	e.clearSession()
	e.mode = ModeIdle
	if e.plant.Withered {
		e.mode = ModeWithered
	}
	e.reviving = false
	e.lastWatered = e.plant.WateredCount
	e.wasWithered = e.plant.Withered
	e.bloomShown = e.plant.Stage == MaxStage && !e.plant.Withered
	e.lastTick = e.clock.Now()

	e.logger.Info("state restored",
		"mode", e.mode,
		"tasks", e.tasks.len(),
		"stage", e.plant.Stage,
		"withered", e.plant.Withered,
		"daily_goal", e.plant.DailyGoal)
}

// Bus returns the bus the engine emits onto.
func (e *Engine) Bus() *event.Bus { return e.bus }

// ---------------------------------------------------------------------------
// Queries

// Mode returns the current session mode.
func (e *Engine) Mode() Mode { return e.mode }

// ModeString returns the lower-case mode name.
func (e *Engine) ModeString() string { return e.mode.String() }

// ActiveTaskID returns the running task, or 0.
func (e *Engine) ActiveTaskID() uint32 { return e.activeID }

// SelectedTaskID returns the task waiting for a trigger, or 0.
func (e *Engine) SelectedTaskID() uint32 { return e.selectedID }

// TimeLeft returns the remaining seconds of the current period.
func (e *Engine) TimeLeft() uint32 { return e.timeLeft }

// TotalTime returns the length in seconds of the current period.
func (e *Engine) TotalTime() uint32 { return e.totalTime }

// PausedTimeLeft returns the seconds captured by the last pause.
func (e *Engine) PausedTimeLeft() uint32 { return e.pausedLeft }

// WaitingForConfirmation reports whether a trigger release suspended the
// session pending a confirm/cancel decision.
func (e *Engine) WaitingForConfirmation() bool { return e.waiting }

// Reviving reports whether a light revive window is open.
func (e *Engine) Reviving() bool { return e.reviving }

// TaskCount returns the number of tasks.
func (e *Engine) TaskCount() int { return e.tasks.len() }

// MaxTasks returns the task capacity.
func (e *Engine) MaxTasks() int { return e.tasks.cap() }

// CompletedCount returns the number of completed tasks.
func (e *Engine) CompletedCount() int { return e.tasks.completed() }

// Tasks returns a copy of the task list in insertion order.
func (e *Engine) Tasks() []Task { return e.tasks.snapshot() }

// Task returns a copy of the task with the given id.
func (e *Engine) Task(id uint32) (Task, bool) {
	if t := e.tasks.get(id); t != nil {
		return *t, true
	}
	return Task{}, false
}

// CurrentTaskName returns the name of the active task.
func (e *Engine) CurrentTaskName() (string, bool) {
	if t := e.tasks.get(e.activeID); t != nil {
		return t.Name, true
	}
	return "", false
}

// Plant returns the raw plant progress.
func (e *Engine) Plant() Plant { return e.plant }

// PlantInfo returns the consumer view of the plant.
func (e *Engine) PlantInfo() PlantInfo {
	stage := e.plant.Stage
	if e.plant.Withered {
		stage = 0
	}
	return PlantInfo{
		Stage:        stage,
		Withered:     e.plant.Withered,
		CanWater:     e.plant.PendingWater > 0 && !e.plant.Withered && e.plant.Stage < MaxStage,
		WateredCount: e.plant.WateredCount,
		TotalGoal:    e.goal(),
		PendingWater: e.plant.PendingWater,
		DailyGoal:    e.plant.DailyGoal,
	}
}

// DailyGoalsMet reports whether the watered count reached the goal.
// With no goal there is nothing to miss.
func (e *Engine) DailyGoalsMet() bool {
	goal := e.goal()
	return goal == 0 || e.plant.WateredCount >= goal
}

// Snapshot returns the persisted subset of state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Stage:        e.plant.Stage,
		Withered:     e.plant.Withered,
		PendingWater: e.plant.PendingWater,
		WateredCount: e.plant.WateredCount,
		DailyGoal:    e.plant.DailyGoal,
		SessionGoal:  e.plant.SessionGoal,
		NextTaskID:   e.nextID,
		Tasks:        e.tasks.snapshot(),
	}
}

// Status returns a consistent copy of the whole engine state.
func (e *Engine) Status() Status {
	name, _ := e.CurrentTaskName()
	return Status{
		Mode:                   e.mode,
		ActiveTaskID:           e.activeID,
		SelectedTaskID:         e.selectedID,
		TaskName:               name,
		TimeLeftSeconds:        e.timeLeft,
		TotalTimeSeconds:       e.totalTime,
		PausedTimeLeft:         e.pausedLeft,
		WaitingForConfirmation: e.waiting,
		Reviving:               e.reviving,
		Plant:                  e.PlantInfo(),
		Completed:              e.tasks.completed(),
		Tasks:                  e.tasks.snapshot(),
	}
}

// ---------------------------------------------------------------------------
// Internal helpers

// goal is the watered count needed for full bloom this cycle.
func (e *Engine) goal() uint8 {
	if e.plant.SessionGoal > 0 {
		return e.plant.SessionGoal
	}
	return uint8(min(e.tasks.len(), int(maxCount)))
}

// restage recomputes the stage from the watered count and the current goal
// and reports whether it moved. The goal follows the task count while no
// cycle goal is set, so task list changes restage too.
func (e *Engine) restage() bool {
	prev := e.plant.Stage
	e.plant.Stage = StageFor(e.plant.WateredCount, e.goal())
	return e.plant.Stage != prev
}

// clearSession drops the active and selected task and the countdown.
// The caller picks the resulting mode.
func (e *Engine) clearSession() {
	e.activeID = 0
	e.selectedID = 0
	e.timeLeft = 0
	e.totalTime = 0
	e.pausedLeft = 0
	e.waiting = false
}

// stopTimer ends the session and returns to Idle.
func (e *Engine) stopTimer() {
	e.clearSession()
	e.mode = ModeIdle
}

// beginPeriod loads a full countdown for the active task.
func (e *Engine) beginPeriod(mode Mode, minutes uint16) {
	e.mode = mode
	e.totalTime = uint32(minutes) * 60
	e.timeLeft = e.totalTime
	e.lastTick = e.clock.Now()
}

func (e *Engine) emit(ev event.Event) { e.bus.Push(ev) }

func (e *Engine) notifyState() {
	e.bus.PushTag(event.StateChanged)
	e.bus.PushTag(event.DisplayRefresh)
}

// notifyPlant derives plant lifecycle events by comparing the current plant
// with the view at the previous notification.
func (e *Engine) notifyPlant() {
	info := e.PlantInfo()

	switch {
	case e.wasWithered && !info.Withered:
		e.bus.PushTag(event.PlantRevived)
	case !e.wasWithered && info.Withered:
		e.bus.PushTag(event.PlantWithered)
	}
	e.wasWithered = info.Withered

	if info.WateredCount > e.lastWatered && !info.Withered {
		e.emit(event.WithStage(event.PlantWatered, info.Stage))
	}
	e.lastWatered = info.WateredCount

	if info.Stage == MaxStage && !info.Withered && !e.bloomShown {
		e.emit(event.WithStage(event.PlantBloomed, info.Stage))
		e.bloomShown = true
	}
	if info.Stage < MaxStage || info.Withered {
		e.bloomShown = false
	}

	e.bus.PushTag(event.DisplayRefresh)
	e.bus.PushTag(event.WebBroadcast)
}

// commit hands the persisted subset to the persister.
func (e *Engine) commit() {
	e.persister.Save(e.Snapshot())
	e.bus.PushTag(event.SaveState)
}

func saturatingInc(n uint8) uint8 {
	if n == maxCount {
		return n
	}
	return n + 1
}

func saturatingDec(n uint8) uint8 {
	if n == 0 {
		return 0
	}
	return n - 1
}
