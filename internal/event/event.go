package event

import "fmt"

// Tag identifies an event kind. The set is closed: every value below
// tagCount is a valid tag and nothing else is.
type Tag uint8

const (
	// None is the sentinel returned by Pop/Peek on an empty bus.
	None Tag = iota

	// Time events
	Midnight      // day boundary crossed
	TimerTick     // one second elapsed during focus/break
	TimerComplete // focus or break period finished

	// Session and task events
	StateChanged  // mode or session fields changed
	TaskAdded     // task appended to the list
	TaskDeleted   // task removed from the list
	TaskStarted   // task timer started
	TaskCompleted // task marked complete

	// Plant events
	PlantWatered
	PlantWithered
	PlantRevived
	PlantBloomed

	// Consumer hints
	DisplayRefresh // local screen needs redraw
	WebBroadcast   // remote clients need an update

	// Sensor events
	LightDetected     // light above revive threshold
	FlipDetected      // orientation trigger changed
	FlipConfirmNeeded // session suspended, waiting for user decision
	FlipResumed       // suspended session resumed by trigger
	FlipCancelled     // user declined completion, still suspended

	// System events
	SaveState // snapshot handed to the persister
	DayReset  // day-boundary batch reset applied

	tagCount
)

var tagNames = [tagCount]string{
	None:              "NONE",
	Midnight:          "MIDNIGHT",
	TimerTick:         "TIMER_TICK",
	TimerComplete:     "TIMER_COMPLETE",
	StateChanged:      "STATE_CHANGED",
	TaskAdded:         "TASK_ADDED",
	TaskDeleted:       "TASK_DELETED",
	TaskStarted:       "TASK_STARTED",
	TaskCompleted:     "TASK_COMPLETED",
	PlantWatered:      "PLANT_WATERED",
	PlantWithered:     "PLANT_WITHERED",
	PlantRevived:      "PLANT_REVIVED",
	PlantBloomed:      "PLANT_BLOOMED",
	DisplayRefresh:    "DISPLAY_REFRESH",
	WebBroadcast:      "WEB_BROADCAST",
	LightDetected:     "LIGHT_DETECTED",
	FlipDetected:      "FLIP_DETECTED",
	FlipConfirmNeeded: "FLIP_CONFIRM_NEEDED",
	FlipResumed:       "FLIP_RESUMED",
	FlipCancelled:     "FLIP_CANCELLED",
	SaveState:         "SAVE_STATE",
	DayReset:          "DAY_RESET",
}

// String returns the upper-case tag name, or UNKNOWN(n) for values outside
// the closed set.
func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Valid reports whether t belongs to the closed tag set.
func (t Tag) Valid() bool {
	return t < tagCount
}

// Tags returns every valid tag except None, in declaration order.
func Tags() []Tag {
	tags := make([]Tag, 0, tagCount-1)
	for t := None + 1; t < tagCount; t++ {
		tags = append(tags, t)
	}
	return tags
}

// Payload is the small fixed-shape data attached to an event.
// Implementations are limited to the types in this package.
type Payload interface {
	payload()
}

// Count carries a counter value (seconds left, pending water, ...).
type Count uint32

// TaskRef carries a task id.
type TaskRef uint32

// Stage carries a plant stage.
type Stage uint8

// Pair carries two short fields.
type Pair struct {
	First  uint16
	Second uint16
}

func (Count) payload()   {}
func (TaskRef) payload() {}
func (Stage) payload()   {}
func (Pair) payload()    {}

// Event is a tagged, optionally annotated notification.
// Seq is stamped by the bus at push time.
type Event struct {
	Tag     Tag
	Seq     int64
	Payload Payload
}

// New creates an event with no payload.
func New(tag Tag) Event {
	return Event{Tag: tag}
}

// WithCount creates an event carrying a count.
func WithCount(tag Tag, n uint32) Event {
	return Event{Tag: tag, Payload: Count(n)}
}

// WithTask creates an event carrying a task id.
func WithTask(tag Tag, id uint32) Event {
	return Event{Tag: tag, Payload: TaskRef(id)}
}

// WithStage creates an event carrying a plant stage.
func WithStage(tag Tag, stage uint8) Event {
	return Event{Tag: tag, Payload: Stage(stage)}
}

// WithPair creates an event carrying two short fields.
func WithPair(tag Tag, first, second uint16) Event {
	return Event{Tag: tag, Payload: Pair{First: first, Second: second}}
}

// IsNone reports whether the event is the empty sentinel.
func (e Event) IsNone() bool {
	return e.Tag == None
}

// Count returns the count payload, if present.
func (e Event) Count() (uint32, bool) {
	c, ok := e.Payload.(Count)
	return uint32(c), ok
}

// TaskID returns the task id payload, if present.
func (e Event) TaskID() (uint32, bool) {
	r, ok := e.Payload.(TaskRef)
	return uint32(r), ok
}

// Stage returns the plant stage payload, if present.
func (e Event) Stage() (uint8, bool) {
	s, ok := e.Payload.(Stage)
	return uint8(s), ok
}

// Pair returns the two-field payload, if present.
func (e Event) Pair() (Pair, bool) {
	p, ok := e.Payload.(Pair)
	return p, ok
}

func (e Event) String() string {
	switch p := e.Payload.(type) {
	case Count:
		return fmt.Sprintf("%s(count=%d)", e.Tag, uint32(p))
	case TaskRef:
		return fmt.Sprintf("%s(task=%d)", e.Tag, uint32(p))
	case Stage:
		return fmt.Sprintf("%s(stage=%d)", e.Tag, uint8(p))
	case Pair:
		return fmt.Sprintf("%s(%d,%d)", e.Tag, p.First, p.Second)
	default:
		return e.Tag.String()
	}
}
