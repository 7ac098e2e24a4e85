// Package taskstore persists todo tasks per user in SQLite.
package taskstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a task does not exist for the requesting user.
// A task owned by someone else is reported the same way.
var ErrNotFound = errors.New("task not found")

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single todo item.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTask holds the fields of a task being created.
type NewTask struct {
	Title       string
	Description string
	Priority    Priority
	Tags        []string
}

// Patch lists the fields to change on update. Nil fields are left as is.
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Tags        []string
	SetTags     bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && !p.SetTags
}

// Status filters tasks by completion.
type Status string

const (
	StatusAll       Status = "all"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Filter restricts List results. Zero values match everything; set fields
// combine with AND.
type Filter struct {
	Status   Status
	Priority Priority
	Search   string
}

// Store is the task persistence contract. Every method is scoped by userID.
type Store interface {
	Create(ctx context.Context, userID string, t NewTask) (*Task, error)
	List(ctx context.Context, userID string, f Filter) ([]*Task, error)
	Get(ctx context.Context, userID string, id int64) (*Task, error)
	Update(ctx context.Context, userID string, id int64, p Patch) (*Task, error)
	Delete(ctx context.Context, userID string, id int64) (bool, error)
	SetCompleted(ctx context.Context, userID string, id int64, completed bool) (*Task, error)
}
