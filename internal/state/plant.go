package state

// MaxStage is full bloom.
const MaxStage uint8 = 3

// Plant is the growth progress of the current cycle.
type Plant struct {
	Stage        uint8
	Withered     bool
	PendingWater uint8 // completed tasks not yet converted into growth
	WateredCount uint8 // growth credits applied
	DailyGoal    uint8
	SessionGoal  uint8 // goal of the current cycle, 0 means "task count"
}

// StageFor derives the plant stage from the watered count and the goal.
//
// Evaluation order matters where the ranges overlap: with goal 1 and one
// credit watered, the plant is in full bloom rather than a sprout.
func StageFor(watered, goal uint8) uint8 {
	switch {
	case goal == 0:
		return 0
	case watered >= goal:
		return MaxStage
	case watered >= 2:
		return 2
	case watered >= 1:
		return 1
	default:
		return 0
	}
}

// PlantInfo is the read-only view of the plant shown to consumers.
type PlantInfo struct {
	Stage        uint8 `json:"stage"`
	Withered     bool  `json:"isWithered"`
	CanWater     bool  `json:"canWater"`
	WateredCount uint8 `json:"wateredCount"`
	TotalGoal    uint8 `json:"totalGoal"`
	PendingWater uint8 `json:"pendingWater"`
	DailyGoal    uint8 `json:"dailyGoal"`
}

func (p *Plant) reset() {
	p.Stage = 0
	p.PendingWater = 0
	p.WateredCount = 0
}
