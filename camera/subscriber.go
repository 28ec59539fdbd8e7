package camera

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SubscriberKind identifies what a Frame Bus subscriber is for, mostly for
// status reporting and for enforcing the at-most-one-recorder invariant.
type SubscriberKind int

const (
	SubscriberKindStream SubscriberKind = iota
	SubscriberKindRecorder
	SubscriberKindExtractionTap
)

func (k SubscriberKind) String() string {
	switch k {
	case SubscriberKindRecorder:
		return "recorder"
	case SubscriberKindExtractionTap:
		return "extraction-tap"
	default:
		return "stream"
	}
}

// DropPolicy governs what happens when a subscriber's inbox is full at
// publish time.
type DropPolicy int

const (
	// DropNewestWins discards the oldest queued frame to make room for the
	// new one. Default for stream subscribers: live preview must never
	// stall the source.
	DropNewestWins DropPolicy = iota
	// DropOldestWins discards the incoming frame, keeping the queue as-is.
	// Used by rate-limited sinks that prefer contiguous samples.
	DropOldestWins
	// DropBlockBounded spins the publisher for up to blockBoundedSpin
	// before giving up and dropping the frame. Reserved for the recorder.
	DropBlockBounded
)

const blockBoundedSpin = 10 * time.Millisecond

// Subscriber is one registered consumer of the Frame Bus. It owns a bounded
// inbox with a single producer (the bus) and a single consumer (the task
// reading Inbox()).
type Subscriber struct {
	id         uint64
	kind       SubscriberKind
	policy     DropPolicy
	inbox      chan *Frame
	closed     int32
	lastSeq    uint64
	dropCount  uint64
	stallCount uint64 // block-bounded publishes that still had to drop
}

func newSubscriber(id uint64, kind SubscriberKind, capacity int, policy DropPolicy) *Subscriber {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > 4 {
		capacity = 4
	}
	return &Subscriber{
		id:     id,
		kind:   kind,
		policy: policy,
		inbox:  make(chan *Frame, capacity),
	}
}

// ID returns the subscriber's unique handle.
func (s *Subscriber) ID() uint64 { return s.id }

// Kind returns the subscriber's role.
func (s *Subscriber) Kind() SubscriberKind { return s.kind }

// Inbox returns the channel the owning task should range/receive on. A nil
// *Frame value is the sentinel close: the owning task must exit after
// observing it.
func (s *Subscriber) Inbox() <-chan *Frame { return s.inbox }

// DropCount returns the number of frames dropped for this subscriber.
func (s *Subscriber) DropCount() uint64 { return atomic.LoadUint64(&s.dropCount) }

// LastDeliveredSequence returns the sequence number most recently enqueued
// to this subscriber's inbox.
func (s *Subscriber) LastDeliveredSequence() uint64 { return atomic.LoadUint64(&s.lastSeq) }

func (s *Subscriber) isClosed() bool { return atomic.LoadInt32(&s.closed) == 1 }

// deliver attempts to hand frame to the subscriber per its drop policy. It
// never blocks the caller for longer than blockBoundedSpin. Returns true if
// the frame was enqueued (and thus the caller's reference was transferred).
func (s *Subscriber) deliver(frame *Frame) bool {
	if s.isClosed() {
		return false
	}

	select {
	case s.inbox <- frame:
		atomic.StoreUint64(&s.lastSeq, frame.Sequence)
		return true
	default:
	}

	switch s.policy {
	case DropOldestWins:
		atomic.AddUint64(&s.dropCount, 1)
		return false

	case DropBlockBounded:
		deadline := time.Now().Add(blockBoundedSpin)
		for time.Now().Before(deadline) {
			select {
			case s.inbox <- frame:
				atomic.StoreUint64(&s.lastSeq, frame.Sequence)
				return true
			default:
				time.Sleep(100 * time.Microsecond)
			}
		}
		atomic.AddUint64(&s.dropCount, 1)
		atomic.AddUint64(&s.stallCount, 1)
		return false

	default: // DropNewestWins
		select {
		case stale := <-s.inbox:
			stale.Release()
			atomic.AddUint64(&s.dropCount, 1)
		default:
		}
		select {
		case s.inbox <- frame:
			atomic.StoreUint64(&s.lastSeq, frame.Sequence)
			return true
		default:
			// Lost a race with the consumer draining concurrently; count
			// it as a drop rather than spin further.
			atomic.AddUint64(&s.dropCount, 1)
			return false
		}
	}
}

// closeWith marks the subscriber closed, drains and releases any queued
// frames, and delivers the sentinel close (nil) so the owning task exits.
func (s *Subscriber) closeWith(sentinel bool) {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	drainLoop:
	for {
		select {
		case f := <-s.inbox:
			if f != nil {
				f.Release()
			}
		default:
			break drainLoop
		}
	}
	if sentinel {
		select {
		case s.inbox <- nil:
		default:
		}
	}
}

// subscriberRegistry guards the live subscriber set with a short-held lock;
// iteration during Publish happens on a snapshot copy so a slow consumer
// can never block Subscribe/Unsubscribe.
type subscriberRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	members map[uint64]*Subscriber
}

func newSubscriberRegistry() *subscriberRegistry {
	return &subscriberRegistry{members: make(map[uint64]*Subscriber)}
}

func (r *subscriberRegistry) add(kind SubscriberKind, capacity int, policy DropPolicy) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub := newSubscriber(r.nextID, kind, capacity, policy)
	r.members[sub.id] = sub
	return sub
}

func (r *subscriberRegistry) remove(id uint64) *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.members[id]
	delete(r.members, id)
	return sub
}

func (r *subscriberRegistry) hasKind(kind SubscriberKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.members {
		if s.kind == kind {
			return true
		}
	}
	return false
}

func (r *subscriberRegistry) snapshot() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscriber, 0, len(r.members))
	for _, s := range r.members {
		out = append(out, s)
	}
	return out
}

func (r *subscriberRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *subscriberRegistry) clear() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Subscriber, 0, len(r.members))
	for _, s := range r.members {
		out = append(out, s)
	}
	r.members = make(map[uint64]*Subscriber)
	// IDs are assigned in registration order.
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
