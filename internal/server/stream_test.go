package server

import (
	"testing"
	"time"
)

func testEvent(jobID string, generation int) ProgressEvent {
	return ProgressEvent{
		JobID:      jobID,
		State:      StateRunning,
		Generation: generation,
		BestScore:  3.2,
		Timestamp:  time.Now(),
	}
}

func TestEventBroadcaster_SubscribeAndBroadcast(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	eb.Broadcast(testEvent("job-1", 5))

	select {
	case event := <-ch:
		if event.Generation != 5 {
			t.Errorf("Expected generation 5, got %d", event.Generation)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestEventBroadcaster_MultipleClients(t *testing.T) {
	eb := NewEventBroadcaster()

	ch1 := eb.Subscribe("job-1")
	ch2 := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch1)
	defer eb.Unsubscribe("job-1", ch2)

	eb.Broadcast(testEvent("job-1", 7))

	for i, ch := range []chan ProgressEvent{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Generation != 7 {
				t.Errorf("Client %d: expected generation 7, got %d", i, event.Generation)
			}
		case <-time.After(time.Second):
			t.Fatalf("Client %d timed out", i)
		}
	}
}

func TestEventBroadcaster_JobIsolation(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-a")
	defer eb.Unsubscribe("job-a", ch)

	eb.Broadcast(testEvent("job-b", 3))

	select {
	case event := <-ch:
		t.Fatalf("Received event for wrong job: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBroadcaster_LastEventReplay(t *testing.T) {
	eb := NewEventBroadcaster()

	// Broadcast before anyone subscribes
	eb.Broadcast(testEvent("job-1", 9))

	// A late subscriber gets the cached last event
	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	select {
	case event := <-ch:
		if event.Generation != 9 {
			t.Errorf("Expected replayed generation 9, got %d", event.Generation)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for replayed event")
	}
}

func TestEventBroadcaster_Unsubscribe(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	eb.Unsubscribe("job-1", ch)

	// Channel must be closed after unsubscribe
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Expected closed channel after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for channel close")
	}

	// Broadcasting after unsubscribe must not panic
	eb.Broadcast(testEvent("job-1", 1))
}

func TestEventBroadcaster_CleanupJob(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	eb.Broadcast(testEvent("job-1", 2))
	eb.CleanupJob("job-1")

	// Drain: the channel holds the broadcast event, then closes
	for {
		_, ok := <-ch
		if !ok {
			break
		}
	}

	// The cached event is gone, so a new subscriber gets nothing
	fresh := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", fresh)

	select {
	case event := <-fresh:
		t.Fatalf("Expected no replay after cleanup, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBroadcaster_FullChannelDoesNotBlock(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	// Overflow the buffered channel; Broadcast must drop, not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			eb.Broadcast(testEvent("job-1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full channel")
	}
}
