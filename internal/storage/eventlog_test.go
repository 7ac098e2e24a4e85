package storage

import (
	"testing"
	"time"

	"github.com/dohr-michael/taskchat/internal/events"
)

func waitForEvents(t *testing.T, el *EventLogger, userID string, n int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := el.Load(userID)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventLogger_WriteAndReadBack(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(t.TempDir(), bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceDispatch, "alice", "conv_1",
		events.UserMessagePayload{Content: "hello"}))

	got := waitForEvents(t, el, "alice", 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != events.EventUserMessage || got[0].ConversationID != "conv_1" {
		t.Errorf("unexpected event: %+v", got[0])
	}
	if got[0].Payload["content"] != "hello" {
		t.Errorf("payload content = %v", got[0].Payload["content"])
	}
}

func TestEventLogger_SeparatesUsers(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(t.TempDir(), bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceDispatch, "alice", "c1", events.UserMessagePayload{Content: "a"}))
	bus.Publish(events.NewTypedEvent(events.SourceDispatch, "bob", "c2", events.UserMessagePayload{Content: "b"}))
	bus.Publish(events.NewTypedEvent(events.SourceDispatch, "../evil", "c3", events.UserMessagePayload{Content: "x"}))

	if got := waitForEvents(t, el, "bob", 1); len(got) != 1 || got[0].UserID != "bob" {
		t.Errorf("bob log = %+v", got)
	}
	if got := waitForEvents(t, el, "alice", 1); len(got) != 1 || got[0].UserID != "alice" {
		t.Errorf("alice log = %+v", got)
	}
	if got := waitForEvents(t, el, "../evil", 1); len(got) != 1 || got[0].UserID != "../evil" {
		t.Errorf("invalid user ids should land in the fallback log, got %+v", got)
	}
}

func TestEventLogger_Close(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(t.TempDir(), bus)
	el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceDispatch, "alice", "c", events.UserMessagePayload{}))
	time.Sleep(50 * time.Millisecond)

	got, err := el.Load("alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("closed logger wrote %d events", len(got))
	}
}
