package shared

import (
	"fmt"
	"sync/atomic"
)

// DefaultNotifierDepth is the broadcast queue depth used by the device build.
const DefaultNotifierDepth = 10

// Kind names the state a remote client needs re-sent.
type Kind uint8

const (
	KindStatus Kind = iota + 1
	KindPlant
	KindTasks
)

// Kinds lists every broadcast kind in send order.
var Kinds = []Kind{KindTasks, KindPlant, KindStatus}

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindPlant:
		return "plant"
	case KindTasks:
		return "tasks"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Notifier is a bounded queue of rebroadcast requests.
//
// Send is safe from any goroutine and never blocks: a full queue drops the
// request. A dropped request is harmless because the next state change asks
// again and a status frame supersedes the previous one. Only the network
// loop receives.
type Notifier struct {
	ch      chan Kind
	dropped atomic.Uint64
}

// NewNotifier creates a notifier holding at most depth requests.
// A depth <= 0 falls back to DefaultNotifierDepth.
func NewNotifier(depth int) *Notifier {
	if depth <= 0 {
		depth = DefaultNotifierDepth
	}
	return &Notifier{ch: make(chan Kind, depth)}
}

// Send enqueues k. Returns false if the queue was full.
func (n *Notifier) Send(k Kind) bool {
	select {
	case n.ch <- k:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

// C exposes the receive side for select loops.
func (n *Notifier) C() <-chan Kind {
	return n.ch
}

// Drain hands every queued request to fn without blocking and returns how
// many were handled.
func (n *Notifier) Drain(fn func(Kind)) int {
	handled := 0
	for {
		select {
		case k := <-n.ch:
			fn(k)
			handled++
		default:
			return handled
		}
	}
}

// Len returns the number of queued requests.
func (n *Notifier) Len() int { return len(n.ch) }

// Cap returns the queue depth.
func (n *Notifier) Cap() int { return cap(n.ch) }

// Dropped returns how many requests were refused because the queue was
// full.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }
