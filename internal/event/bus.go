package event

// DefaultCapacity is the bus size used by the device build.
const DefaultCapacity = 32

// Bus is a fixed-capacity FIFO of events.
//
// When full, Push evicts the oldest entry: the bus favours freshness over
// completeness, and an eviction is counted but never reported as a failure.
//
// Bus is NOT safe for concurrent use. Exactly one goroutine may touch it at
// a time; in the running device that is whoever holds the shared state lock.
// RemoveAll in particular rebuilds the buffer in place and must never race
// with Push or Pop.
type Bus struct {
	buf     []Event
	head    int
	count   int
	clock   *Clock
	evicted uint64
}

// NewBus creates a bus holding at most capacity events.
// A capacity <= 0 falls back to DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		buf:   make([]Event, capacity),
		clock: NewClock(),
	}
}

// Push appends e, evicting the oldest entry when the bus is full.
// The event is stamped with the next sequence number.
func (b *Bus) Push(e Event) {
	if !e.Tag.Valid() || e.Tag == None {
		return
	}
	e.Seq = b.clock.Next()

	if b.count == len(b.buf) {
		b.buf[b.head] = Event{}
		b.head = (b.head + 1) % len(b.buf)
		b.count--
		b.evicted++
	}

	tail := (b.head + b.count) % len(b.buf)
	b.buf[tail] = e
	b.count++
}

// PushTag is shorthand for Push(New(tag)).
func (b *Bus) PushTag(tag Tag) {
	b.Push(New(tag))
}

// Pop removes and returns the oldest event.
// Returns (Event{Tag: None}, false) when empty.
func (b *Bus) Pop() (Event, bool) {
	if b.count == 0 {
		return Event{}, false
	}
	e := b.buf[b.head]
	b.buf[b.head] = Event{}
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	return e, true
}

// Peek returns the oldest event without removing it.
func (b *Bus) Peek() (Event, bool) {
	if b.count == 0 {
		return Event{}, false
	}
	return b.buf[b.head], true
}

// HasEvent reports whether any queued event carries tag.
func (b *Bus) HasEvent(tag Tag) bool {
	for i := 0; i < b.count; i++ {
		if b.buf[(b.head+i)%len(b.buf)].Tag == tag {
			return true
		}
	}
	return false
}

// RemoveAll drops every queued event carrying tag, keeping the relative
// order of the rest. Returns the number removed.
func (b *Bus) RemoveAll(tag Tag) int {
	kept := make([]Event, 0, b.count)
	for i := 0; i < b.count; i++ {
		e := b.buf[(b.head+i)%len(b.buf)]
		if e.Tag != tag {
			kept = append(kept, e)
		}
	}
	removed := b.count - len(kept)
	if removed == 0 {
		return 0
	}

	for i := range b.buf {
		b.buf[i] = Event{}
	}
	copy(b.buf, kept)
	b.head = 0
	b.count = len(kept)
	return removed
}

// Drain pops every queued event into dst and returns the extended slice.
// Useful for copying events out of a critical section before handling them.
func (b *Bus) Drain(dst []Event) []Event {
	for {
		e, ok := b.Pop()
		if !ok {
			return dst
		}
		dst = append(dst, e)
	}
}

// Events returns a copy of the queued events, oldest first.
func (b *Bus) Events() []Event {
	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// Clear drops all queued events.
func (b *Bus) Clear() {
	for i := range b.buf {
		b.buf[i] = Event{}
	}
	b.head = 0
	b.count = 0
}

// Len returns the number of queued events.
func (b *Bus) Len() int { return b.count }

// Cap returns the fixed capacity.
func (b *Bus) Cap() int { return len(b.buf) }

// Empty reports whether nothing is queued.
func (b *Bus) Empty() bool { return b.count == 0 }

// Full reports whether the next Push will evict.
func (b *Bus) Full() bool { return b.count == len(b.buf) }

// Evicted returns how many events were dropped to make room.
func (b *Bus) Evicted() uint64 { return b.evicted }
