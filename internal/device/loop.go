package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
)

// DefaultInterval is the sensing period of the device build.
const DefaultInterval = 100 * time.Millisecond

// Loop is the sensing goroutine.
//
// Not safe for concurrent use: Run and Step must be called from one
// goroutine.
type Loop struct {
	access   *shared.Accessor
	notifier *shared.Notifier

	orientation OrientationSensor
	light       LightSensor
	flip        *FlipDetector
	consumers   []Consumer

	clock    state.Clock
	logger   *slog.Logger
	interval time.Duration

	buf []event.Event
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithOrientation attaches an orientation sensor and the detector that
// interprets it.
func WithOrientation(s OrientationSensor, d *FlipDetector) LoopOption {
	return func(l *Loop) {
		l.orientation = s
		if d != nil {
			l.flip = d
		}
	}
}

// WithLight attaches a light sensor.
func WithLight(s LightSensor) LoopOption {
	return func(l *Loop) { l.light = s }
}

// WithConsumers adds local event consumers.
func WithConsumers(cs ...Consumer) LoopOption {
	return func(l *Loop) { l.consumers = append(l.consumers, cs...) }
}

// WithLoopClock sets the wall clock. Default: time.Now.
func WithLoopClock(c state.Clock) LoopOption {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLoopLogger sets the logger. Default: slog.Default().
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithInterval sets the sensing period. Default: DefaultInterval.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewLoop creates a sensing loop over access that posts broadcast requests
// to notifier. A nil notifier disables the network bridge.
func NewLoop(access *shared.Accessor, notifier *shared.Notifier, opts ...LoopOption) *Loop {
	l := &Loop{
		access:   access,
		notifier: notifier,
		flip:     NewFlipDetector(-10000, 10000, 500*time.Millisecond),
		clock:    wallClock{},
		logger:   slog.Default(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run steps the loop every interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("sensing loop starting", "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sensing loop stopping")
			return nil
		case <-ticker.C:
			l.Step(l.clock.Now())
		}
	}
}

// Step runs one sensing pass at now and returns the events it drained. The
// slice is reused by the next Step.
//
// Sensors are read before the lock is taken; consumers and the notifier
// are fed after it is released. Consecutive display refreshes collapse into
// one.
func (l *Loop) Step(now time.Time) []event.Event {
	orientation, haveOrientation := l.readOrientation()
	lightLevel, haveLight := l.readLight()

	var flipped, asserted bool
	if haveOrientation {
		asserted, flipped = l.flip.Update(orientation, now)
	}

	l.access.Do(func(e *state.Engine) {
		e.Advance(now)

		if flipped {
			e.Bus().Push(event.WithCount(event.FlipDetected, boolCount(asserted)))
			if err := e.HandleFlip(asserted); err != nil {
				l.logger.Debug("flip ignored", "asserted", asserted, "error", err)
			}
		}
		if haveLight {
			e.HandleLightLevel(lightLevel, now)
		}

		bus := e.Bus()
		refresh := bus.RemoveAll(event.DisplayRefresh) > 0
		l.buf = bus.Drain(l.buf[:0])
		if refresh {
			l.buf = append(l.buf, event.New(event.DisplayRefresh))
		}
	})

	l.dispatch(l.buf)
	return l.buf
}

func (l *Loop) readOrientation() (int, bool) {
	if l.orientation == nil {
		return 0, false
	}
	v, err := l.orientation.ReadOrientation()
	if err != nil {
		l.logger.Warn("orientation read failed", "error", err)
		return 0, false
	}
	return v, true
}

func (l *Loop) readLight() (int, bool) {
	if l.light == nil {
		return 0, false
	}
	v, err := l.light.ReadLight()
	if err != nil {
		l.logger.Warn("light read failed", "error", err)
		return 0, false
	}
	return v, true
}

func (l *Loop) dispatch(events []event.Event) {
	var want [shared.KindTasks + 1]bool
	for _, ev := range events {
		for _, c := range l.consumers {
			c.Consume(ev)
		}
		for _, k := range BroadcastKinds(ev.Tag) {
			want[k] = true
		}
	}

	if l.notifier == nil {
		return
	}
	for _, k := range shared.Kinds {
		if want[k] && !l.notifier.Send(k) {
			l.logger.Debug("broadcast request dropped", "kind", k.String())
		}
	}
}

// BroadcastKinds maps an event to the remote views it invalidates.
func BroadcastKinds(tag event.Tag) []shared.Kind {
	switch tag {
	case event.StateChanged, event.TimerTick, event.TimerComplete, event.TaskStarted,
		event.FlipConfirmNeeded, event.FlipResumed, event.FlipCancelled:
		return []shared.Kind{shared.KindStatus}
	case event.TaskAdded, event.TaskDeleted, event.TaskCompleted, event.DayReset:
		return []shared.Kind{shared.KindTasks}
	case event.PlantWatered, event.PlantWithered, event.PlantRevived, event.PlantBloomed, event.LightDetected:
		return []shared.Kind{shared.KindPlant}
	case event.WebBroadcast:
		return shared.Kinds
	default:
		return nil
	}
}

func boolCount(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
