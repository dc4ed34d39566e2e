package jobs

import (
	"testing"
	"time"

	"github.com/ownlingo/ownlingo/internal/globaltime"
)

func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(8)
	bus.Publish(Event{Kind: EventSchedulerStarted})
	bus.Publish(Event{Kind: EventProgress, JobID: 1, Progress: 50})
	bus.Publish(Event{Kind: EventJobCompleted, JobID: 1})
	bus.Close()

	var kinds []EventKind
	for event := range bus.Events() {
		kinds = append(kinds, event.Kind)
		if event.At.IsZero() {
			t.Errorf("event %s has zero timestamp", event.Kind)
		}
	}
	want := []EventKind{EventSchedulerStarted, EventProgress, EventJobCompleted}
	if len(kinds) != len(want) {
		t.Fatalf("received %d events, want %d", len(kinds), len(want))
	}
	for i, kind := range want {
		if kinds[i] != kind {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], kind)
		}
	}
}

func TestBusPublishBlocksWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	bus.Publish(Event{Kind: EventProgress})

	published := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: EventJobCompleted})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish returned while the buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	<-bus.Events()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after a receive")
	}
}

func TestBusCloseIdempotentAndSilencesPublish(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	bus.Close()
	bus.Close()

	// Publishing after close must not panic on the closed channel.
	bus.Publish(Event{Kind: EventProgress})

	if _, ok := <-bus.Events(); ok {
		t.Fatal("expected closed events channel")
	}
}

func TestBusStampsPublishTime(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	globaltime.Freeze(at)
	defer globaltime.Reset()

	bus := NewBus(1)
	bus.Publish(Event{Kind: EventProgress})
	bus.Close()

	event := <-bus.Events()
	if !event.At.Equal(at) {
		t.Errorf("event.At = %v, want the frozen clock %v", event.At, at)
	}
}

func TestBusPreservesTimestamp(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Kind: EventProgress, At: at})
	bus.Close()

	event := <-bus.Events()
	if !event.At.Equal(at) {
		t.Errorf("event.At = %v, want %v", event.At, at)
	}
}
