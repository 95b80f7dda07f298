package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bloom/internal/state"
)

// SaveSnapshot replaces the persisted snapshot.
// seq is an opaque save counter recorded for inspection.
func (s *Store) SaveSnapshot(ctx context.Context, snap state.Snapshot, seq uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plant_state
		(id, plant_stage, plant_withered, pending_water, watered_count, daily_goal, session_goal, next_task_id, saved_seq)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plant_stage    = excluded.plant_stage,
			plant_withered = excluded.plant_withered,
			pending_water  = excluded.pending_water,
			watered_count  = excluded.watered_count,
			daily_goal     = excluded.daily_goal,
			session_goal   = excluded.session_goal,
			next_task_id   = excluded.next_task_id,
			saved_seq      = excluded.saved_seq
	`,
		snap.Stage,
		snap.Withered,
		snap.PendingWater,
		snap.WateredCount,
		snap.DailyGoal,
		snap.SessionGoal,
		snap.NextTaskID,
		int64(seq),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: plant: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("save snapshot: clear tasks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (position, id, name, focus_minutes, break_minutes, completed, started)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save snapshot: prepare tasks: %w", err)
	}
	defer stmt.Close()

	for i, t := range snap.Tasks {
		if _, err := stmt.ExecContext(ctx, i, t.ID, t.Name, t.FocusMinutes, t.BreakMinutes, t.Completed, t.Started); err != nil {
			return fmt.Errorf("save snapshot: task %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted snapshot.
// Returns found=false on a database that was never saved to.
func (s *Store) LoadSnapshot(ctx context.Context) (snap state.Snapshot, found bool, err error) {
	var (
		stage, pending, watered, daily, session int64
		withered                                bool
		nextID                                  int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT plant_stage, plant_withered, pending_water, watered_count, daily_goal, session_goal, next_task_id
		FROM plant_state WHERE id = 1
	`).Scan(&stage, &withered, &pending, &watered, &daily, &session, &nextID)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Snapshot{}, false, nil
	}
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("load snapshot: plant: %w", err)
	}

	snap = state.Snapshot{
		Stage:        clampUint8(stage),
		Withered:     withered,
		PendingWater: clampUint8(pending),
		WateredCount: clampUint8(watered),
		DailyGoal:    clampUint8(daily),
		SessionGoal:  clampUint8(session),
		NextTaskID:   clampUint32(nextID),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, focus_minutes, break_minutes, completed, started
		FROM tasks
		ORDER BY position ASC
	`)
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("load snapshot: tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, focus, brk     int64
			name               string
			completed, started bool
		)
		if err := rows.Scan(&id, &name, &focus, &brk, &completed, &started); err != nil {
			return state.Snapshot{}, false, fmt.Errorf("load snapshot: scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, state.Task{
			ID:           clampUint32(id),
			Name:         name,
			FocusMinutes: clampUint16(focus),
			BreakMinutes: clampUint16(brk),
			Completed:    completed,
			Started:      started,
		})
	}
	if err := rows.Err(); err != nil {
		return state.Snapshot{}, false, fmt.Errorf("load snapshot: tasks: %w", err)
	}

	return snap, true, nil
}

// SavedSeq returns the save counter of the persisted snapshot, 0 if none.
func (s *Store) SavedSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_seq FROM plant_state WHERE id = 1`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("saved seq: %w", err)
	}
	return uint64(max(seq, 0)), nil
}

func clampUint8(v int64) uint8 {
	return uint8(min(max(v, 0), 255))
}

func clampUint16(v int64) uint16 {
	return uint16(min(max(v, 0), 65535))
}

func clampUint32(v int64) uint32 {
	return uint32(min(max(v, 0), 1<<32-1))
}
