package state

// Snapshot is the persisted subset of engine state: plant progress, goals
// and the task list. Session fields are not persisted; a restored engine
// always boots Idle (or Withered).
type Snapshot struct {
	Stage        uint8  `json:"plant_stage"`
	Withered     bool   `json:"plant_withered"`
	PendingWater uint8  `json:"pending_water"`
	WateredCount uint8  `json:"watered_count"`
	DailyGoal    uint8  `json:"daily_goal"`
	SessionGoal  uint8  `json:"session_goal"`
	NextTaskID   uint32 `json:"next_task_id"`
	Tasks        []Task `json:"tasks"`
}

// Persister receives a snapshot after every mutation that changes
// persisted state.
//
// Save is called while the caller holds the shared state lock, so it must
// not block: implementations hand the snapshot off and write it elsewhere.
type Persister interface {
	Save(Snapshot)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(Snapshot)

// Save calls f(s).
func (f PersisterFunc) Save(s Snapshot) { f(s) }

type nopPersister struct{}

func (nopPersister) Save(Snapshot) {}

// Status is a consistent copy of everything the engine knows, session
// included. It is what read-only consumers serialize.
type Status struct {
	Mode                   Mode      `json:"state"`
	ActiveTaskID           uint32    `json:"activeTaskId"`
	SelectedTaskID         uint32    `json:"selectedTaskId"`
	TaskName               string    `json:"taskName,omitempty"`
	TimeLeftSeconds        uint32    `json:"timeLeft"`
	TotalTimeSeconds       uint32    `json:"totalTime"`
	PausedTimeLeft         uint32    `json:"pausedTimeLeft"`
	WaitingForConfirmation bool      `json:"waitingForConfirmation"`
	Reviving               bool      `json:"reviving"`
	Plant                  PlantInfo `json:"plant"`
	Completed              int       `json:"completed"`
	Tasks                  []Task    `json:"tasks"`
}
