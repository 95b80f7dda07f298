package shared

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/bloom/internal/state"
)

// DefaultSlowHold is the critical-section length past which the accessor
// logs a warning.
const DefaultSlowHold = 20 * time.Millisecond

// Accessor serializes every access to one state.Engine.
//
// Each call runs exactly one closure under the lock. Closures must not block
// or do I/O: the device loop takes the same lock every pass and must never
// stall behind a slow handler. Reads and writes share the lock.
//
// The engine's event bus is only touched from inside these closures, which
// keeps it single-writer-at-a-time.
type Accessor struct {
	mu       sync.Mutex
	engine   *state.Engine
	logger   *slog.Logger
	slowHold time.Duration
}

// AccessorOption configures an Accessor.
type AccessorOption func(*Accessor)

// WithAccessorLogger sets the logger for slow-hold warnings.
func WithAccessorLogger(l *slog.Logger) AccessorOption {
	return func(a *Accessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSlowHold sets the slow-hold warning threshold. Zero disables it.
func WithSlowHold(d time.Duration) AccessorOption {
	return func(a *Accessor) {
		a.slowHold = d
	}
}

// NewAccessor wraps e. The caller must stop using e directly.
func NewAccessor(e *state.Engine, opts ...AccessorOption) *Accessor {
	a := &Accessor{
		engine:   e,
		logger:   slog.Default(),
		slowHold: DefaultSlowHold,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// With runs fn under the lock and returns its error.
func (a *Accessor) With(fn func(*state.Engine) error) error {
	a.mu.Lock()
	defer a.unlock(time.Now())
	return fn(a.engine)
}

// Do runs fn under the lock.
func (a *Accessor) Do(fn func(*state.Engine)) {
	a.mu.Lock()
	defer a.unlock(time.Now())
	fn(a.engine)
}

func (a *Accessor) unlock(start time.Time) {
	held := time.Since(start)
	a.mu.Unlock()
	if a.slowHold > 0 && held > a.slowHold {
		a.logger.Warn("state lock held too long", "held", held, "threshold", a.slowHold)
	}
}

// Read runs fn under the lock and returns its result. Use it to copy state
// out (state.Engine.Status, Snapshot, Tasks) before serializing it.
func Read[T any](a *Accessor, fn func(*state.Engine) T) T {
	var out T
	a.Do(func(e *state.Engine) {
		out = fn(e)
	})
	return out
}
