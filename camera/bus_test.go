package camera

import (
	"testing"
	"time"
)

func newTestFrame(seq uint64) *Frame {
	return NewFrame(seq, 2, 2, PixelFormatMJPEG, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0, nil)
}

func TestFrameBusPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewFrameBus(nil)
	sub1, err := bus.Subscribe(SubscriberKindStream, 2, DropNewestWins)
	if err != nil {
		t.Fatalf("subscribe sub1: %v", err)
	}
	sub2, err := bus.Subscribe(SubscriberKindStream, 2, DropNewestWins)
	if err != nil {
		t.Fatalf("subscribe sub2: %v", err)
	}

	bus.Publish(newTestFrame(1))

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case f := <-sub.Inbox():
			if f == nil || f.Sequence != 1 {
				t.Fatalf("expected frame seq 1, got %#v", f)
			}
			f.Release()
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestFrameBusAtMostOneRecorder(t *testing.T) {
	bus := NewFrameBus(nil)
	if _, err := bus.Subscribe(SubscriberKindRecorder, 2, DropBlockBounded); err != nil {
		t.Fatalf("first recorder subscribe: %v", err)
	}
	if _, err := bus.Subscribe(SubscriberKindRecorder, 2, DropBlockBounded); err == nil {
		t.Fatal("expected second recorder subscription to be rejected")
	}
}

func TestFrameBusNewestWinsDropsOldest(t *testing.T) {
	bus := NewFrameBus(nil)
	sub, err := bus.Subscribe(SubscriberKindStream, 1, DropNewestWins)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Publish(newTestFrame(1))
	bus.Publish(newTestFrame(2))

	f := <-sub.Inbox()
	if f.Sequence != 2 {
		t.Fatalf("expected newest frame (seq 2) to survive, got seq %d", f.Sequence)
	}
	f.Release()
	if sub.DropCount() != 1 {
		t.Fatalf("expected 1 drop, got %d", sub.DropCount())
	}
}

func TestFrameBusUnsubscribeDrainsAndCloses(t *testing.T) {
	bus := NewFrameBus(nil)
	sub, err := bus.Subscribe(SubscriberKindStream, 2, DropNewestWins)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.Publish(newTestFrame(1))

	bus.Unsubscribe(sub)
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", bus.SubscriberCount())
	}
}

func TestFrameBusPublishWithNoSubscribersReleasesFrame(t *testing.T) {
	bus := NewFrameBus(nil)
	var released bool
	f := NewFrame(1, 2, 2, PixelFormatMJPEG, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0, func() {
		released = true
	})
	bus.Publish(f)
	if !released {
		t.Fatal("expected release hook to fire when no subscribers are registered")
	}
}

func TestFrameBusCloseSendsSentinel(t *testing.T) {
	bus := NewFrameBus(nil)
	sub, err := bus.Subscribe(SubscriberKindStream, 2, DropNewestWins)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.Close()

	select {
	case f := <-sub.Inbox():
		if f != nil {
			t.Fatalf("expected sentinel nil frame on close, got %#v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sentinel close")
	}
}
