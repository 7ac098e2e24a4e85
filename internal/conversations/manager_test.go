package conversations

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	fs := NewFileStore(t.TempDir())
	clock := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	fs.now = tick
	m := NewManager(fs)
	m.now = tick
	return m
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestOpen_CreatesThenReuses(t *testing.T) {
	m := newTestManager(t)

	first, err := m.Open("alice", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !first.Active || first.UserID != "alice" {
		t.Errorf("unexpected conversation: %+v", first)
	}

	again, err := m.Open("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("expected reuse of %s, got %s", first.ID, again.ID)
	}

	bobs, err := m.Open("bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if bobs.ID == first.ID {
		t.Error("users must not share conversations")
	}
}

func TestOpen_ExplicitID(t *testing.T) {
	m := newTestManager(t)
	c, err := m.Open("alice", "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.Open("alice", c.ID)
	if err != nil || got.ID != c.ID {
		t.Fatalf("Open(explicit) = %+v, %v", got, err)
	}

	for _, tc := range []struct{ user, id string }{
		{"bob", c.ID},
		{"alice", "conv_doesnotexist"},
		{"alice", "../../etc/passwd"},
	} {
		if _, err := m.Open(tc.user, tc.id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%s, %s): expected ErrNotFound, got %v", tc.user, tc.id, err)
		}
	}

	if err := m.Deactivate("alice", c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open("alice", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("inactive conversation accepted: %v", err)
	}
}

func TestAppendRecent_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	c, err := m.Open("alice", "")
	if err != nil {
		t.Fatal(err)
	}

	var want []string
	for i := 0; i < 6; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		content := fmt.Sprintf("msg %d: with ünïcode\tand\nnewlines", i)
		if _, err := m.Append("alice", c.ID, role, content, map[string]any{"i": i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		want = append(want, string(role)+":"+content)
	}

	all, err := m.Recent("alice", c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, contents(all)); diff != "" {
		t.Errorf("full log (-want +got):\n%s", diff)
	}

	last3, err := m.Recent("alice", c.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want[3:], contents(last3)); diff != "" {
		t.Errorf("window (-want +got):\n%s", diff)
	}

	again, _ := m.Recent("alice", c.ID, 3)
	if diff := cmp.Diff(last3, again); diff != "" {
		t.Errorf("Recent is not deterministic (-first +second):\n%s", diff)
	}

	if _, err := m.Recent("bob", c.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob read alice's messages: %v", err)
	}
	if _, err := m.Append("bob", c.ID, RoleUser, "hijack", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob appended to alice's conversation: %v", err)
	}
}

func TestDeactivate_KeepsMessages(t *testing.T) {
	m := newTestManager(t)
	c, _ := m.Open("alice", "")
	if _, err := m.Append("alice", c.ID, RoleUser, "keep me", nil); err != nil {
		t.Fatal(err)
	}

	if err := m.Deactivate("alice", c.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := m.Deactivate("bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob deactivated alice's conversation: %v", err)
	}

	active, _ := m.List("alice", false)
	if len(active) != 0 {
		t.Errorf("inactive conversation listed: %+v", active)
	}
	all, _ := m.List("alice", true)
	if len(all) != 1 || all[0].Active {
		t.Errorf("List(all) = %+v", all)
	}

	msgs, err := m.Recent("alice", c.ID, 0)
	if err != nil || len(msgs) != 1 {
		t.Errorf("messages lost after deactivation: %v, %v", msgs, err)
	}

	// The next request without an id starts fresh.
	next, err := m.Open("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if next.ID == c.ID {
		t.Error("deactivated conversation reused")
	}
}

func TestOpen_ConcurrentSingleConversation(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.Open("alice", "")
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent Open created several conversations: %v", ids)
		}
	}
}
