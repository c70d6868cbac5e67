package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaultkeeper/internal/engine"
)

func progressEvent(step string) engine.Event {
	return engine.Event{Type: engine.EventProgress, Progress: &engine.Progress{Step: step}}
}

func TestEventHubFetchSince(t *testing.T) {
	hub := engine.NewEventHub(3)
	for _, step := range []string{"a", "b", "c", "d"} {
		hub.Publish(progressEvent(step))
	}

	events, next, err := hub.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 3 || events[0].Progress.Step != "b" || next != 4 {
		t.Fatalf("unexpected events %+v next %d", events, next)
	}

	events, _, _ = hub.Fetch(context.Background(), 3, 0, false)
	if len(events) != 1 || events[0].Sequence != 4 {
		t.Fatalf("unexpected tail %+v", events)
	}
	events, _, _ = hub.Fetch(context.Background(), 4, 0, false)
	if len(events) != 0 {
		t.Fatalf("expected nothing new, got %+v", events)
	}
}

func TestEventHubWaitWakesOnPublish(t *testing.T) {
	hub := engine.NewEventHub(8)
	done := make(chan []engine.Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 0, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(progressEvent("x"))
	select {
	case events := <-done:
		if len(events) != 1 || events[0].Progress.Step != "x" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestEventHubWaitHonoursCancel(t *testing.T) {
	hub := engine.NewEventHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, 0, 0, true)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter ignored cancellation")
	}
}
