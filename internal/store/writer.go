package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/bloom/internal/state"
)

// flushTimeout bounds the final write on shutdown.
const flushTimeout = 2 * time.Second

// SnapshotWriter is the engine's Persister.
//
// Save only parks the snapshot in a one-slot mailbox (latest wins) and
// wakes the writer goroutine, so it is safe to call under the shared state
// lock. Run performs the SQLite writes. Identical consecutive snapshots are
// written once.
type SnapshotWriter struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	pending *state.Snapshot
	last    *state.Snapshot
	wake    chan struct{}

	seq      atomic.Uint64
	writes   atomic.Uint64
	failures atomic.Uint64
}

// NewSnapshotWriter creates a writer for s. Call Run to start writing.
func NewSnapshotWriter(s *Store, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{
		store:  s,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Prime records snap as already on disk, so an unchanged first save after
// boot is skipped.
func (w *SnapshotWriter) Prime(snap state.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = &snap
}

// Save implements state.Persister. It never blocks.
func (w *SnapshotWriter) Save(snap state.Snapshot) {
	w.mu.Lock()
	w.pending = &snap
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run writes snapshots until ctx is cancelled, then flushes whatever is
// still pending.
func (w *SnapshotWriter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			return w.Flush(flushCtx)
		case <-w.wake:
			// Failures are logged in Flush and retried with the next save.
			_ = w.Flush(ctx)
		}
	}
}

// Flush writes the pending snapshot, if any.
func (w *SnapshotWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	if snap == nil || (w.last != nil && sameSnapshot(*w.last, *snap)) {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	seq := w.seq.Add(1)
	if err := w.store.SaveSnapshot(ctx, *snap, seq); err != nil {
		w.failures.Add(1)
		w.logger.Error("snapshot save failed", "seq", seq, "error", err)
		w.mu.Lock()
		if w.pending == nil {
			w.pending = snap
		}
		w.mu.Unlock()
		return err
	}
	w.writes.Add(1)
	w.logger.Debug("snapshot saved", "seq", seq, "tasks", len(snap.Tasks))

	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()
	return nil
}

// Writes returns the number of snapshots written.
func (w *SnapshotWriter) Writes() uint64 { return w.writes.Load() }

// Failures returns the number of failed writes.
func (w *SnapshotWriter) Failures() uint64 { return w.failures.Load() }

func sameSnapshot(a, b state.Snapshot) bool {
	return a.Stage == b.Stage &&
		a.Withered == b.Withered &&
		a.PendingWater == b.PendingWater &&
		a.WateredCount == b.WateredCount &&
		a.DailyGoal == b.DailyGoal &&
		a.SessionGoal == b.SessionGoal &&
		a.NextTaskID == b.NextTaskID &&
		slices.Equal(a.Tasks, b.Tasks)
}
