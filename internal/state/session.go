package state

import (
	"time"

	"github.com/roach88/bloom/internal/event"
)

// AddTask appends a task and returns its id.
//
// The name is normalised with NormalizeName. Both durations must be
// positive. Fails with CAPACITY_EXCEEDED when the list is full.
func (e *Engine) AddTask(name string, focusMins, breakMins uint16) (uint32, error) {
	if e.tasks.full() {
		return 0, reject(ErrCodeCapacityExceeded, 0, "task list full (%d)", e.tasks.cap())
	}
	name = NormalizeName(name)
	if name == "" {
		return 0, reject(ErrCodeInvalidArgument, 0, "task name is empty")
	}
	if focusMins == 0 || breakMins == 0 {
		return 0, reject(ErrCodeInvalidArgument, 0, "durations must be positive (focus=%d, break=%d)", focusMins, breakMins)
	}

	id := e.nextID
	e.nextID++
	if e.nextID == 0 {
		e.nextID = 1
	}
	e.tasks.append(Task{
		ID:           id,
		Name:         name,
		FocusMinutes: focusMins,
		BreakMinutes: breakMins,
	})

	e.logger.Debug("task added", "task_id", id, "name", name, "focus", focusMins, "break", breakMins)
	e.emit(event.WithTask(event.TaskAdded, id))
	e.notifyState()
	if e.restage() {
		e.notifyPlant()
	}
	e.commit()
	return id, nil
}

// DeleteTask removes a task, compacting the list.
//
// Deleting the active task stops the session. Deleting a completed task
// gives back one pending water credit.
func (e *Engine) DeleteTask(id uint32) error {
	i := e.tasks.index(id)
	if i < 0 {
		return reject(ErrCodeInvalidReference, id, "unknown task")
	}

	t := e.tasks.items[i]
	if t.ID == e.activeID {
		e.stopTimer()
	}
	if t.ID == e.selectedID {
		e.selectedID = 0
	}
	if t.Completed {
		e.plant.PendingWater = saturatingDec(e.plant.PendingWater)
	}
	e.tasks.removeAt(i)

	e.logger.Debug("task deleted", "task_id", id, "remaining", e.tasks.len())
	e.emit(event.WithTask(event.TaskDeleted, id))
	e.notifyState()
	if e.restage() {
		e.notifyPlant()
	}
	e.commit()
	return nil
}

// ClearAllTasks drops every task and the credits earned from them.
func (e *Engine) ClearAllTasks() {
	e.tasks.clear()
	e.clearSession()
	if e.mode != ModeWithered {
		e.mode = ModeIdle
	}
	e.plant.PendingWater = 0
	e.plant.WateredCount = 0
	e.restage()

	e.logger.Debug("all tasks cleared")
	e.notifyState()
	e.notifyPlant()
	e.commit()
}

// StartTask starts a focus period for the task. A withered plant has to be
// revived first.
func (e *Engine) StartTask(id uint32) error {
	t := e.tasks.get(id)
	if t == nil {
		return reject(ErrCodeInvalidReference, id, "unknown task")
	}
	if e.mode == ModeWithered {
		return reject(ErrCodeInvalidTransition, id, "start while withered")
	}

	t.Started = true
	e.activeID = id
	e.pausedLeft = 0
	e.waiting = false
	e.beginPeriod(ModeFocusing, t.FocusMinutes)

	e.logger.Debug("task started", "task_id", id, "seconds", e.totalTime)
	e.emit(event.WithTask(event.TaskStarted, id))
	e.notifyState()
	e.commit()
	return nil
}

// ToggleTaskComplete flips the completed flag of a started task.
//
// Completing earns one pending water credit and, for the active task, ends
// the session. Un-completing takes the credit back.
func (e *Engine) ToggleTaskComplete(id uint32) error {
	t := e.tasks.get(id)
	if t == nil {
		return reject(ErrCodeInvalidReference, id, "unknown task")
	}
	if !t.Started {
		return reject(ErrCodeInvalidTransition, id, "task not started")
	}

	t.Completed = !t.Completed
	if t.Completed {
		e.plant.PendingWater = saturatingInc(e.plant.PendingWater)
		if id == e.activeID {
			e.stopTimer()
		}
		e.emit(event.WithTask(event.TaskCompleted, id))
	} else {
		e.plant.PendingWater = saturatingDec(e.plant.PendingWater)
	}
	e.restage()

	e.logger.Debug("task toggled", "task_id", id, "completed", t.Completed, "pending_water", e.plant.PendingWater)
	e.notifyState()
	e.notifyPlant()
	e.commit()
	return nil
}

// PauseTimer suspends a running countdown.
func (e *Engine) PauseTimer() error {
	if !e.mode.Running() {
		return reject(ErrCodeInvalidTransition, 0, "pause while %s", e.mode)
	}
	e.pause()
	e.notifyState()
	e.commit()
	return nil
}

// ResumeTimer continues a paused countdown in the period it was paused in.
func (e *Engine) ResumeTimer() error {
	if e.mode != ModePaused || e.pausedLeft == 0 {
		return reject(ErrCodeInvalidTransition, 0, "resume while %s", e.mode)
	}
	e.waiting = false
	e.resume()
	e.notifyState()
	e.commit()
	return nil
}

// StopTimer abandons the session and returns to Idle.
func (e *Engine) StopTimer() error {
	if e.mode == ModeWithered {
		return reject(ErrCodeInvalidTransition, 0, "stop while withered")
	}
	e.stopTimer()
	e.logger.Debug("timer stopped")
	e.notifyState()
	e.commit()
	return nil
}

func (e *Engine) pause() {
	e.pausedLeft = e.timeLeft
	e.pausedFrom = e.mode
	e.mode = ModePaused
	e.logger.Debug("timer paused", "time_left", e.pausedLeft)
}

func (e *Engine) resume() {
	e.timeLeft = e.pausedLeft
	e.pausedLeft = 0
	e.mode = e.pausedFrom
	if !e.mode.Running() {
		e.mode = ModeFocusing
	}
	e.lastTick = e.clock.Now()
	e.logger.Debug("timer resumed", "mode", e.mode, "time_left", e.timeLeft)
}

// Tick advances the countdown by one unit.
//
// At zero, Focusing moves to Break and Break back to Focusing for the
// active task; without an active task the session stops. Ticks do not touch
// persisted state and are not handed to the persister.
func (e *Engine) Tick() error {
	if !e.mode.Running() {
		return reject(ErrCodeInvalidTransition, 0, "tick while %s", e.mode)
	}
	if e.timeLeft > 0 {
		e.timeLeft--
		e.emit(event.WithCount(event.TimerTick, e.timeLeft))
		e.bus.PushTag(event.DisplayRefresh)
	}
	if e.timeLeft == 0 {
		e.completePeriod()
	}
	return nil
}

// Advance runs every tick owed since the last baseline. It returns the
// number of ticks applied.
func (e *Engine) Advance(now time.Time) int {
	if !e.mode.Running() {
		e.lastTick = now
		return 0
	}
	n := 0
	for e.mode.Running() && now.Sub(e.lastTick) >= e.tickInterval {
		e.lastTick = e.lastTick.Add(e.tickInterval)
		_ = e.Tick()
		n++
	}
	return n
}

func (e *Engine) completePeriod() {
	e.emit(event.WithTask(event.TimerComplete, e.activeID))

	t := e.tasks.get(e.activeID)
	switch {
	case e.mode == ModeFocusing && t != nil:
		e.beginPeriod(ModeBreak, t.BreakMinutes)
		e.logger.Debug("focus complete, break started", "task_id", t.ID, "seconds", e.totalTime)
	case e.mode == ModeBreak && t != nil:
		e.beginPeriod(ModeFocusing, t.FocusMinutes)
		e.logger.Debug("break complete, focus restarted", "task_id", t.ID, "seconds", e.totalTime)
	default:
		e.stopTimer()
	}
	e.notifyState()
}

// ---------------------------------------------------------------------------
// Physical trigger protocol

// SelectTaskForFlip marks a task as ready to start on the next trigger
// assertion without starting it.
func (e *Engine) SelectTaskForFlip(id uint32) error {
	t := e.tasks.get(id)
	if t == nil {
		return reject(ErrCodeInvalidReference, id, "unknown task")
	}
	if t.Completed {
		return reject(ErrCodeInvalidTransition, id, "task already completed")
	}

	e.selectedID = id
	t.Started = true

	e.logger.Debug("task selected for flip", "task_id", id)
	e.notifyState()
	e.commit()
	return nil
}

// HandleFlip applies an orientation trigger change.
//
//   - asserted, Idle, task selected: start the selected task
//   - released, Focusing: suspend and wait for a confirm/cancel decision
//   - asserted, Paused: resume with the remaining time intact
//
// Any other combination is rejected.
func (e *Engine) HandleFlip(asserted bool) error {
	switch {
	case asserted && e.selectedID != 0 && e.mode == ModeIdle:
		t := e.tasks.get(e.selectedID)
		if t == nil {
			return reject(ErrCodeInvalidReference, e.selectedID, "selected task vanished")
		}
		e.activeID = t.ID
		e.selectedID = 0
		e.beginPeriod(ModeFocusing, t.FocusMinutes)

		e.logger.Debug("flip start", "task_id", t.ID, "seconds", e.totalTime)
		e.emit(event.WithTask(event.TaskStarted, t.ID))
		e.bus.PushTag(event.WebBroadcast)
		e.notifyState()
		e.commit()
		return nil

	case !asserted && e.mode == ModeFocusing:
		if e.tasks.get(e.activeID) == nil {
			return reject(ErrCodeInvalidTransition, e.activeID, "no active task to suspend")
		}
		e.pause()
		e.waiting = true

		e.logger.Debug("flip pause, waiting for confirmation", "task_id", e.activeID)
		e.emit(event.WithTask(event.FlipConfirmNeeded, e.activeID))
		e.bus.PushTag(event.WebBroadcast)
		e.notifyState()
		e.commit()
		return nil

	case asserted && e.mode == ModePaused:
		if e.pausedLeft == 0 {
			return reject(ErrCodeInvalidTransition, e.activeID, "nothing to resume")
		}
		wasWaiting := e.waiting
		e.waiting = false
		e.resume()
		if wasWaiting {
			e.emit(event.WithTask(event.FlipResumed, e.activeID))
			e.bus.PushTag(event.WebBroadcast)
		}
		e.notifyState()
		e.commit()
		return nil
	}

	return reject(ErrCodeInvalidTransition, 0, "flip asserted=%t ignored while %s", asserted, e.mode)
}

// ConfirmTaskComplete accepts a suspended session as done: the active task
// is completed, one water credit is earned and the session ends.
func (e *Engine) ConfirmTaskComplete() error {
	if !e.waiting {
		return reject(ErrCodeInvalidTransition, 0, "not waiting for confirmation")
	}
	t := e.tasks.get(e.activeID)
	if t == nil {
		return reject(ErrCodeInvalidReference, e.activeID, "active task vanished")
	}

	id := t.ID
	if !t.Completed {
		t.Completed = true
		e.plant.PendingWater = saturatingInc(e.plant.PendingWater)
	}
	e.stopTimer()

	e.logger.Debug("task confirmed complete", "task_id", id, "pending_water", e.plant.PendingWater)
	e.emit(event.WithTask(event.TaskCompleted, id))
	e.notifyState()
	e.notifyPlant()
	e.commit()
	return nil
}

// CancelTaskComplete declines completion. The session stays suspended
// until the trigger is asserted again.
func (e *Engine) CancelTaskComplete() error {
	if !e.waiting {
		return reject(ErrCodeInvalidTransition, 0, "not waiting for confirmation")
	}
	e.logger.Debug("task completion cancelled", "task_id", e.activeID)
	e.emit(event.WithTask(event.FlipCancelled, e.activeID))
	e.bus.PushTag(event.WebBroadcast)
	return nil
}
