package device

import (
	"log/slog"

	"github.com/roach88/bloom/internal/event"
)

// Consumer handles events drained from the bus on the sensing goroutine.
// Consume must not block; it runs outside the state lock.
type Consumer interface {
	Consume(event.Event)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(event.Event)

func (f ConsumerFunc) Consume(ev event.Event) { f(ev) }

// LogConsumer writes every event to a logger at Debug, except timer ticks
// which are too frequent to be useful.
type LogConsumer struct {
	Logger *slog.Logger
}

func (c LogConsumer) Consume(ev event.Event) {
	if ev.Tag == event.TimerTick {
		return
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("event", "tag", ev.Tag.String(), "event", ev.String())
}
