package state

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxTasks is the task capacity used by the device build.
	DefaultMaxTasks = 10

	// MaxNameBytes bounds a stored task name.
	MaxNameBytes = 31
)

// Task is one unit of work the user runs focus sessions against.
type Task struct {
	ID           uint32 `json:"id"`
	Name         string `json:"name"`
	FocusMinutes uint16 `json:"focusDuration"`
	BreakMinutes uint16 `json:"breakDuration"`
	Completed    bool   `json:"completed"`
	Started      bool   `json:"started"`
}

// NormalizeName returns the stored form of a task name: NFC-normalised,
// trimmed, and cut to MaxNameBytes on a rune boundary.
func NormalizeName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if len(name) <= MaxNameBytes {
		return name
	}
	cut := MaxNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return strings.TrimSpace(name[:cut])
}

// taskList is an ordered collection with a capacity fixed at construction.
// The backing array is allocated once and never grows.
type taskList struct {
	items []Task
}

func newTaskList(capacity int) taskList {
	if capacity <= 0 {
		capacity = DefaultMaxTasks
	}
	return taskList{items: make([]Task, 0, capacity)}
}

func (l *taskList) len() int   { return len(l.items) }
func (l *taskList) cap() int   { return cap(l.items) }
func (l *taskList) full() bool { return len(l.items) == cap(l.items) }

func (l *taskList) append(t Task) bool {
	if l.full() {
		return false
	}
	l.items = append(l.items, t)
	return true
}

func (l *taskList) index(id uint32) int {
	if id == 0 {
		return -1
	}
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *taskList) get(id uint32) *Task {
	if i := l.index(id); i >= 0 {
		return &l.items[i]
	}
	return nil
}

// removeAt compacts the list, preserving order.
func (l *taskList) removeAt(i int) {
	copy(l.items[i:], l.items[i+1:])
	l.items[len(l.items)-1] = Task{}
	l.items = l.items[:len(l.items)-1]
}

func (l *taskList) clear() {
	for i := range l.items {
		l.items[i] = Task{}
	}
	l.items = l.items[:0]
}

func (l *taskList) completed() int {
	n := 0
	for i := range l.items {
		if l.items[i].Completed {
			n++
		}
	}
	return n
}

func (l *taskList) maxID() uint32 {
	var m uint32
	for i := range l.items {
		if l.items[i].ID > m {
			m = l.items[i].ID
		}
	}
	return m
}

func (l *taskList) snapshot() []Task {
	out := make([]Task, len(l.items))
	copy(out, l.items)
	return out
}
