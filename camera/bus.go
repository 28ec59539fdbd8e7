package camera

import "fmt"

// FrameBus fans out published frames to registered subscribers without
// ever blocking the publisher beyond the block-bounded recorder's spin
// budget. It is the single choke point between the Capture Source and
// every consumer (stream sessions, the recorder, extraction taps).
type FrameBus struct {
	registry *subscriberRegistry
	log      Logger
}

// NewFrameBus creates an empty bus. log may be nil.
func NewFrameBus(log Logger) *FrameBus {
	return &FrameBus{registry: newSubscriberRegistry(), log: log}
}

// Subscribe registers a new consumer and returns its handle. Enforces the
// at-most-one-recorder invariant (I3): a second SubscriberKindRecorder
// subscription is rejected with ErrState.
func (b *FrameBus) Subscribe(kind SubscriberKind, inboxCapacity int, policy DropPolicy) (*Subscriber, error) {
	if kind == SubscriberKindRecorder && b.registry.hasKind(SubscriberKindRecorder) {
		return nil, fmt.Errorf("subscribe recorder: %w", ErrState)
	}
	return b.registry.add(kind, inboxCapacity, policy), nil
}

// Unsubscribe removes a subscriber, draining and releasing any frames
// still queued for it. Safe to call more than once.
func (b *FrameBus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	if removed := b.registry.remove(sub.id); removed != nil {
		removed.closeWith(false)
	} else {
		sub.closeWith(false)
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *FrameBus) SubscriberCount() int {
	return b.registry.count()
}

// HasRecorder reports whether a recorder subscriber is currently attached.
func (b *FrameBus) HasRecorder() bool {
	return b.registry.hasKind(SubscriberKindRecorder)
}

// Publish delivers frame to every active subscriber per its drop policy.
// It never blocks the caller beyond the block-bounded recorder's spin
// budget (10ms). The snapshot of subscribers is taken under a short-held
// lock and iterated outside it, so Subscribe/Unsubscribe are never
// blocked by a slow consumer.
func (b *FrameBus) Publish(frame *Frame) {
	if frame == nil || !frame.Valid() {
		if b.log != nil && frame != nil {
			b.log.Debugf("frame bus: dropping invalid frame seq=%d", frame.Sequence)
		}
		return
	}
	subs := b.registry.snapshot()
	if len(subs) == 0 {
		// No one is listening; release the publisher's own reference so
		// the underlying kernel buffer is requeued immediately.
		frame.Release()
		return
	}
	frame.Retain(int32(len(subs)))
	delivered := 0
	for _, sub := range subs {
		if sub.deliver(frame) {
			delivered++
		}
	}
	// Release the references for subscribers that did not accept delivery;
	// delivered subscribers release their own reference when they finish
	// with the frame. Finally release the publisher's own reference
	// (held since NewFrame) now that the frame has been handed off.
	for i := 0; i < len(subs)-delivered; i++ {
		frame.Release()
	}
	frame.Release()
}

// Close publishes a sentinel close to every subscriber in registration
// order, then clears the registry. Called when the Capture Source ends
// (clean stop or terminal fault).
func (b *FrameBus) Close() {
	subs := b.registry.clear()
	for _, sub := range subs {
		sub.closeWith(true)
	}
}
