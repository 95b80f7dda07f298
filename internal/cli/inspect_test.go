package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloom/internal/state"
	"github.com/roach88/bloom/internal/store"
)

func seedSnapshot(t *testing.T, dbPath string, withered bool) state.Snapshot {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	snap := state.Snapshot{
		Stage:        1,
		Withered:     withered,
		PendingWater: 1,
		WateredCount: 1,
		DailyGoal:    3,
		SessionGoal:  3,
		NextTaskID:   3,
		Tasks: []state.Task{
			{ID: 1, Name: "write", FocusMinutes: 25, BreakMinutes: 5, Started: true, Completed: true},
			{ID: 2, Name: "review", FocusMinutes: 15, BreakMinutes: 3},
		},
	}
	require.NoError(t, st.SaveSnapshot(context.Background(), snap, 7))
	return snap
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInspectText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bloom.db")
	seedSnapshot(t, dbPath, false)

	out, err := executeRoot(t, "inspect", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(save #7)")
	assert.Contains(t, out, "Plant: stage 1/3, alive")
	assert.Contains(t, out, "Water: 1 pending, 1 given")
	assert.Contains(t, out, "Goals: daily 3, cycle 3")
	assert.Contains(t, out, "[x] #1 write (25/5 min)")
	assert.Contains(t, out, "[ ] #2 review (15/3 min)")
}

func TestInspectJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bloom.db")
	want := seedSnapshot(t, dbPath, true)

	out, err := executeRoot(t, "inspect", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(7), resp.Data.SavedSeq)
	assert.Equal(t, want, resp.Data.Snapshot)
}

func TestInspectMissingDatabase(t *testing.T) {
	_, err := executeRoot(t, "inspect", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestInspectEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bloom.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeRoot(t, "inspect", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NO_SNAPSHOT]")
}

func TestResetRestartsDay(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bloom.db")
	seedSnapshot(t, dbPath, true)

	out, err := executeRoot(t, "reset", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(save #8)")
	assert.Contains(t, out, "Tasks (0): none")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	snap, found, err := st.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, snap.Withered)
	assert.Empty(t, snap.Tasks)
	assert.Zero(t, snap.PendingWater)
	assert.Zero(t, snap.DailyGoal)
	assert.Equal(t, uint32(3), snap.NextTaskID, "ids are never reused")

	seq, err := st.SavedSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), seq)
}

func TestResetEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bloom.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeRoot(t, "reset", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(save #1)")
}
