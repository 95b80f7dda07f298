// Package store persists bloom state in SQLite.
//
// The persisted state is a single snapshot: one plant_state row plus the
// ordered task list. Every save replaces the whole snapshot inside one
// transaction, so a crash leaves either the old or the new state on disk.
//
// The engine saves while holding the shared state lock, so it never talks
// to the database directly. SnapshotWriter takes the snapshot, keeps only
// the latest one, and writes it from its own goroutine.
//
// # Database Configuration
//
//   - WAL mode: readers (bloom inspect) never block the writer
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
