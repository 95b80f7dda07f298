package server

import (
	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
)

// Broadcast frames. Field names are what the web UI reads.

type statusFrame struct {
	Type                   string  `json:"type"`
	State                  string  `json:"state"`
	TimeLeft               uint32  `json:"timeLeft"`
	TotalTime              uint32  `json:"totalTime"`
	WaitingForConfirmation bool    `json:"waitingForConfirmation"`
	ActiveTaskID           uint32  `json:"activeTaskId"`
	SelectedTaskID         uint32  `json:"selectedTaskId"`
	TaskName               *string `json:"taskName"`
}

type plantFrame struct {
	Type string `json:"type"`
	plantView
}

type plantView struct {
	Stage        uint8 `json:"stage"`
	IsWithered   bool  `json:"isWithered"`
	CanWater     bool  `json:"canWater"`
	WateredCount uint8 `json:"wateredCount"`
	TotalGoal    uint8 `json:"totalGoal"`
	PendingWater uint8 `json:"pendingWater"`
	DailyGoal    uint8 `json:"dailyGoal"`
}

type tasksFrame struct {
	Type  string       `json:"type"`
	Tasks []state.Task `json:"tasks"`
}

type ackFrame struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	RequestID string `json:"requestId"`
	TaskID    uint32 `json:"taskId,omitempty"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Action    string `json:"action,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
	Code      string `json:"code"`
}

func newStatusFrame(st state.Status) statusFrame {
	f := statusFrame{
		Type:                   "status",
		State:                  st.Mode.String(),
		TimeLeft:               st.TimeLeftSeconds,
		TotalTime:              st.TotalTimeSeconds,
		WaitingForConfirmation: st.WaitingForConfirmation,
		ActiveTaskID:           st.ActiveTaskID,
		SelectedTaskID:         st.SelectedTaskID,
	}
	if st.TaskName != "" {
		name := st.TaskName
		f.TaskName = &name
	}
	return f
}

func newPlantFrame(p state.PlantInfo) plantFrame {
	return plantFrame{Type: "plant", plantView: newPlantView(p)}
}

func newPlantView(p state.PlantInfo) plantView {
	return plantView{
		Stage:        p.Stage,
		IsWithered:   p.Withered,
		CanWater:     p.CanWater,
		WateredCount: p.WateredCount,
		TotalGoal:    p.TotalGoal,
		PendingWater: p.PendingWater,
		DailyGoal:    p.DailyGoal,
	}
}

func newTasksFrame(tasks []state.Task) tasksFrame {
	if tasks == nil {
		tasks = []state.Task{}
	}
	return tasksFrame{Type: "tasks", Tasks: tasks}
}

// frameFor builds the frame for k from a status copy.
func frameFor(k shared.Kind, st state.Status) any {
	switch k {
	case shared.KindTasks:
		return newTasksFrame(st.Tasks)
	case shared.KindPlant:
		return newPlantFrame(st.Plant)
	default:
		return newStatusFrame(st)
	}
}
