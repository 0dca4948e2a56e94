package events

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversEventsToWatcher(t *testing.T) {
	b := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := b.Publish(context.Background(), Event{Kind: KindTaskAssigned, ProjectID: "p1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != KindTaskAssigned || evt.Seq == 0 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFiltersByKind(t *testing.T) {
	b := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Watch(ctx, KindTaskCompleted)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	_ = b.Publish(context.Background(), Event{Kind: KindTaskAssigned})
	_ = b.Publish(context.Background(), Event{Kind: KindTaskCompleted})

	select {
	case evt := <-ch:
		if evt.Kind != KindTaskCompleted {
			t.Fatalf("expected only KindTaskCompleted, got %s", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("expected no second delivery, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusClosesChannelOnContextCancel(t *testing.T) {
	b := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBusIsolatesFullSubscriberFromOthers(t *testing.T) {
	b := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	fast, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = b.Publish(context.Background(), Event{Kind: KindTaskAssigned})
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber never received an event despite slow subscriber overflowing")
	}

	_ = slow
}

func TestBusPreservesEmissionOrderPerSubscriber(t *testing.T) {
	b := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < 5; i++ {
		_ = b.Publish(context.Background(), Event{Kind: KindTaskAssigned, Payload: map[string]any{"i": i}})
	}

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		select {
		case evt := <-ch:
			if evt.Seq <= lastSeq {
				t.Fatalf("expected increasing seq, got %d after %d", evt.Seq, lastSeq)
			}
			lastSeq = evt.Seq
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for ordered event")
		}
	}
}
