package state

import (
	"time"

	"github.com/roach88/bloom/internal/event"
)

// WaterPlant converts one pending credit into growth.
func (e *Engine) WaterPlant() error {
	switch {
	case e.plant.Withered:
		return reject(ErrCodeInvalidTransition, 0, "plant is withered")
	case e.plant.PendingWater == 0:
		return reject(ErrCodeInvalidTransition, 0, "no pending water")
	case e.plant.Stage >= MaxStage:
		return reject(ErrCodeInvalidTransition, 0, "plant fully grown")
	}

	e.plant.PendingWater--
	e.plant.WateredCount = saturatingInc(e.plant.WateredCount)
	e.restage()

	e.logger.Debug("plant watered",
		"stage", e.plant.Stage,
		"watered", e.plant.WateredCount,
		"goal", e.goal(),
		"pending_water", e.plant.PendingWater)
	e.notifyPlant()
	e.commit()
	return nil
}

// KillPlant withers the plant and ends any session.
func (e *Engine) KillPlant() {
	e.plant.Withered = true
	e.clearSession()
	e.mode = ModeWithered
	e.reviving = false

	e.logger.Debug("plant withered")
	e.notifyState()
	e.notifyPlant()
	e.commit()
}

// RevivePlant brings a withered plant back at stage 0.
func (e *Engine) RevivePlant() error {
	if !e.plant.Withered {
		return reject(ErrCodeInvalidTransition, 0, "plant is not withered")
	}
	e.plant.Withered = false
	e.plant.reset()
	e.mode = ModeIdle
	e.reviving = false

	e.logger.Debug("plant revived")
	e.notifyState()
	e.notifyPlant()
	e.commit()
	return nil
}

// SetDailyGoal replaces the daily goal and restarts plant progress.
//
// The cycle goal becomes the increase over the previous daily goal, or the
// goal itself when none was set. A lower goal than before saturates the
// increase at 0, which makes the cycle fall back to the task count.
func (e *Engine) SetDailyGoal(goal uint8) {
	prev := e.plant.DailyGoal
	e.plant.DailyGoal = goal
	switch {
	case prev == 0:
		e.plant.SessionGoal = goal
	case goal > prev:
		e.plant.SessionGoal = goal - prev
	default:
		e.plant.SessionGoal = 0
	}
	e.plant.reset()

	e.logger.Debug("daily goal set", "daily_goal", goal, "session_goal", e.plant.SessionGoal)
	e.notifyState()
	e.notifyPlant()
	e.commit()
}

// ResetForNewDay clears the task list. A living plant also restarts its
// progress with the daily goal as the cycle goal; a withered plant stays
// withered.
func (e *Engine) ResetForNewDay() {
	e.resetDay()

	e.logger.Debug("reset for new day", "withered", e.plant.Withered)
	e.bus.PushTag(event.DayReset)
	e.notifyState()
	e.notifyPlant()
	e.commit()
}

func (e *Engine) resetDay() {
	if !e.plant.Withered {
		e.plant.reset()
		e.plant.SessionGoal = e.plant.DailyGoal
	}
	e.tasks.clear()
	e.clearSession()
	if e.mode != ModeWithered {
		e.mode = ModeIdle
	}
}

// RestartDay resets tasks, plant and goals.
func (e *Engine) RestartDay() {
	e.plant = Plant{}
	e.tasks.clear()
	e.clearSession()
	e.mode = ModeIdle
	e.reviving = false

	e.logger.Debug("day restarted")
	e.bus.PushTag(event.DayReset)
	e.notifyState()
	e.notifyPlant()
	e.commit()
}

// CloseDay applies the day-boundary policy: if any task is left incomplete
// the plant withers, then the day is reset. Both happen in one commit.
// Returns whether the plant was withered by this call.
func (e *Engine) CloseDay() bool {
	killed := false
	if n := e.tasks.len(); n > 0 && e.tasks.completed() < n && !e.plant.Withered {
		e.logger.Info("day closed with incomplete tasks", "completed", e.tasks.completed(), "tasks", n)
		e.plant.Withered = true
		e.mode = ModeWithered
		e.reviving = false
		killed = true
	}
	e.resetDay()

	e.logger.Debug("day closed", "withered", e.plant.Withered)
	e.bus.PushTag(event.Midnight)
	e.bus.PushTag(event.DayReset)
	e.notifyState()
	e.notifyPlant()
	e.commit()
	return killed
}

// HandleLightLevel feeds one light reading. A withered plant revives once
// the reading has stayed at or above the threshold for the revive
// duration; dropping below closes the window. Returns whether the plant was
// revived.
func (e *Engine) HandleLightLevel(value int, now time.Time) bool {
	if !e.plant.Withered {
		e.reviving = false
		return false
	}
	if value < e.lightThreshold {
		e.reviving = false
		return false
	}
	if !e.reviving {
		e.reviving = true
		e.reviveStart = now
		e.emit(event.WithCount(event.LightDetected, uint32(max(value, 0))))
		e.logger.Debug("light detected, revive window open", "value", value)
		return false
	}
	if now.Sub(e.reviveStart) < e.reviveAfter {
		return false
	}
	if err := e.RevivePlant(); err != nil {
		return false
	}
	e.logger.Info("plant revived by light")
	return true
}
