package taskstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func titles(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "alice", NewTask{Title: "buy milk", Tags: []string{"home"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected non-zero id")
	}
	if created.Priority != PriorityMedium {
		t.Errorf("priority: got %q, want medium", created.Priority)
	}
	if created.Completed {
		t.Error("new task must not be completed")
	}

	got, err := s.Get(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestUserIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bobs, err := s.Create(ctx, "bob", NewTask{Title: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "alice", bobs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	title := "hijacked"
	if _, err := s.Update(ctx, "alice", bobs.ID, Patch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if _, err := s.SetCompleted(ctx, "alice", bobs.ID, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCompleted: expected ErrNotFound, got %v", err)
	}
	if ok, err := s.Delete(ctx, "alice", bobs.ID); err != nil || ok {
		t.Errorf("Delete: got (%v, %v), want (false, nil)", ok, err)
	}

	list, err := s.List(ctx, "alice", Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("alice sees %v", titles(list))
	}

	still, err := s.Get(ctx, "bob", bobs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Title != "secret" || still.Completed {
		t.Errorf("bob's task was modified: %+v", still)
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []NewTask{
		{Title: "Groceries", Description: "milk and eggs", Priority: PriorityHigh},
		{Title: "Call mom", Priority: PriorityLow},
		{Title: "Pay rent", Priority: PriorityHigh},
	}
	var ids []int64
	for _, nt := range seed {
		task, err := s.Create(ctx, "alice", nt)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}
	if _, err := s.SetCompleted(ctx, "alice", ids[2], true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"Groceries", "Call mom", "Pay rent"}},
		{"pending", Filter{Status: StatusPending}, []string{"Groceries", "Call mom"}},
		{"completed", Filter{Status: StatusCompleted}, []string{"Pay rent"}},
		{"high", Filter{Priority: PriorityHigh}, []string{"Groceries", "Pay rent"}},
		{"high and pending", Filter{Status: StatusPending, Priority: PriorityHigh}, []string{"Groceries"}},
		{"search description", Filter{Search: "EGGS"}, []string{"Groceries"}},
		{"no match", Filter{Search: "dentist"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, "alice", tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(tt.want, titles(got)); diff != "" {
				t.Errorf("List mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, "alice", NewTask{Title: "draft", Description: "keep", Tags: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}

	high := PriorityHigh
	title := "final"
	updated, err := s.Update(ctx, "alice", task.ID, Patch{Title: &title, Priority: &high, Tags: []string{"b", "c"}, SetTags: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "final" || updated.Priority != PriorityHigh || updated.Description != "keep" {
		t.Errorf("unexpected update result: %+v", updated)
	}
	if diff := cmp.Diff([]string{"b", "c"}, updated.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Error("updated_at did not advance")
	}
}

func TestUpdate_EmptyPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, "alice", NewTask{Title: "draft"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Update(ctx, "alice", task.ID, Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("empty patch changed the task (-want +got):\n%s", diff)
	}

	if _, err := s.Update(ctx, "bob", task.ID, Patch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty patch on foreign task: got %v, want ErrNotFound", err)
	}
}

func TestSetCompleted_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, "alice", NewTask{Title: "water plants"})
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.SetCompleted(ctx, "alice", task.ID, true)
	if err != nil {
		t.Fatalf("first SetCompleted: %v", err)
	}
	second, err := s.SetCompleted(ctx, "alice", task.ID, true)
	if err != nil {
		t.Fatalf("second SetCompleted: %v", err)
	}
	if !second.Completed {
		t.Error("task should stay completed")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("repeated completion must not touch updated_at")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, "alice", NewTask{Title: "temp"})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := s.Delete(ctx, "alice", task.ID)
	if err != nil || !ok {
		t.Fatalf("Delete: got (%v, %v)", ok, err)
	}
	if _, err := s.Get(ctx, "alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
