package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloom/internal/state"
)

func TestSnapshotWriter_LatestWins(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)

	first := sampleSnapshot()
	second := sampleSnapshot()
	second.PendingWater = 0
	second.WateredCount = 3
	second.Stage = 3

	w.Save(first)
	w.Save(second)
	require.NoError(t, w.Flush(context.Background()))

	assert.Equal(t, uint64(1), w.Writes(), "only the latest snapshot is written")
	got, _, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestSnapshotWriter_SkipsUnchanged(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)
	ctx := context.Background()

	w.Save(sampleSnapshot())
	require.NoError(t, w.Flush(ctx))
	w.Save(sampleSnapshot())
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, uint64(1), w.Writes())
}

func TestSnapshotWriter_PrimeSkipsBootSnapshot(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)

	w.Prime(sampleSnapshot())
	w.Save(sampleSnapshot())
	require.NoError(t, w.Flush(context.Background()))

	assert.Equal(t, uint64(0), w.Writes())
}

func TestSnapshotWriter_SaveNeverBlocks(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			w.Save(state.Snapshot{NextTaskID: uint32(i + 1)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Save blocked without a running writer")
	}
}

func TestSnapshotWriter_RunFlushesOnShutdown(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	w.Save(sampleSnapshot())
	require.Eventually(t, func() bool { return w.Writes() == 1 }, time.Second, 5*time.Millisecond)

	final := sampleSnapshot()
	final.Withered = true
	w.Save(final)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	got, _, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Withered, "pending snapshot written before exit")
}

func TestSnapshotWriter_FailureIsRetried(t *testing.T) {
	s := createTestStore(t)
	w := NewSnapshotWriter(s, nil)
	ctx := context.Background()

	bad := sampleSnapshot()
	bad.Tasks = append(bad.Tasks, bad.Tasks[0])
	w.Save(bad)
	require.Error(t, w.Flush(ctx))
	assert.Equal(t, uint64(1), w.Failures())

	w.Save(sampleSnapshot())
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, uint64(1), w.Writes())
}
