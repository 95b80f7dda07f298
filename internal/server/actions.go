package server

import (
	"fmt"

	"github.com/roach88/bloom/internal/state"
)

const (
	defaultTaskName  = "Untitled"
	defaultFocusMins = 25
	defaultBreakMins = 5
)

// taskRequest is a new task. Missing fields take the defaults.
type taskRequest struct {
	Name          *string `json:"name"`
	FocusDuration *uint16 `json:"focusDuration"`
	BreakDuration *uint16 `json:"breakDuration"`
}

func (r taskRequest) values() (string, uint16, uint16) {
	name, focus, brk := defaultTaskName, uint16(defaultFocusMins), uint16(defaultBreakMins)
	if r.Name != nil {
		name = *r.Name
	}
	if r.FocusDuration != nil {
		focus = *r.FocusDuration
	}
	if r.BreakDuration != nil {
		brk = *r.BreakDuration
	}
	return name, focus, brk
}

// actionRequest is the body of POST /api/action and of every websocket
// message.
type actionRequest struct {
	Action string       `json:"action"`
	TaskID uint32       `json:"taskId"`
	Goal   uint8        `json:"goal"`
	Task   *taskRequest `json:"task"`
}

// actionResult carries what a mutation produced back to the caller.
type actionResult struct {
	TaskID uint32
}

type actionFunc func(e *state.Engine, req actionRequest) (actionResult, error)

// actions is the mutation table shared by REST and websocket.
var actions = map[string]actionFunc{
	"water": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.WaterPlant()
	},
	"kill": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		e.KillPlant()
		e.ClearAllTasks()
		return actionResult{}, nil
	},
	"pause": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.PauseTimer()
	},
	"resume": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.ResumeTimer()
	},
	"stop": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.StopTimer()
	},
	"setGoal": func(e *state.Engine, req actionRequest) (actionResult, error) {
		e.SetDailyGoal(req.Goal)
		return actionResult{}, nil
	},
	"restartDay": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		e.RestartDay()
		return actionResult{}, nil
	},
	"revive": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.RevivePlant()
	},
	"selectTask": func(e *state.Engine, req actionRequest) (actionResult, error) {
		return actionResult{TaskID: req.TaskID}, e.SelectTaskForFlip(req.TaskID)
	},
	"startTask": func(e *state.Engine, req actionRequest) (actionResult, error) {
		return actionResult{TaskID: req.TaskID}, e.StartTask(req.TaskID)
	},
	"deleteTask": func(e *state.Engine, req actionRequest) (actionResult, error) {
		return actionResult{TaskID: req.TaskID}, e.DeleteTask(req.TaskID)
	},
	"toggleTask": func(e *state.Engine, req actionRequest) (actionResult, error) {
		return actionResult{TaskID: req.TaskID}, e.ToggleTaskComplete(req.TaskID)
	},
	"confirmComplete": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.ConfirmTaskComplete()
	},
	"cancelComplete": func(e *state.Engine, _ actionRequest) (actionResult, error) {
		return actionResult{}, e.CancelTaskComplete()
	},
	"addTask": func(e *state.Engine, req actionRequest) (actionResult, error) {
		var tr taskRequest
		if req.Task != nil {
			tr = *req.Task
		}
		name, focus, brk := tr.values()
		id, err := e.AddTask(name, focus, brk)
		return actionResult{TaskID: id}, err
	},
}

func lookupAction(name string) (actionFunc, bool) {
	fn, ok := actions[name]
	return fn, ok
}

// restAction looks up an action for POST /api/action. addTask has its own
// route.
func restAction(name string) (actionFunc, bool) {
	if name == "addTask" {
		return nil, false
	}
	fn, ok := actions[name]
	return fn, ok
}

type unknownActionError struct {
	action string
}

func (e unknownActionError) Error() string {
	if e.action == "" {
		return "missing action"
	}
	return fmt.Sprintf("unknown action %q", e.action)
}
