package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/bloom/internal/state"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sampleSnapshot returns a snapshot exercising every field.
func sampleSnapshot() state.Snapshot {
	return state.Snapshot{
		Stage:        2,
		Withered:     false,
		PendingWater: 1,
		WateredCount: 2,
		DailyGoal:    5,
		SessionGoal:  3,
		NextTaskID:   4,
		Tasks: []state.Task{
			{ID: 1, Name: "Write report", FocusMinutes: 25, BreakMinutes: 5, Completed: true, Started: true},
			{ID: 3, Name: "Café break", FocusMinutes: 10, BreakMinutes: 2, Started: true},
			{ID: 2, Name: "Inbox zero", FocusMinutes: 15, BreakMinutes: 3},
		},
	}
}
