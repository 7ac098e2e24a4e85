package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dohr-michael/taskchat/internal/taskstore"
)

// Result is the outcome of a successful tool execution.
type Result struct {
	Tool  ToolName          `json:"tool"`
	Task  *taskstore.Task   `json:"task,omitempty"`
	Tasks []*taskstore.Task `json:"tasks,omitempty"`
	// AlreadyDone is set when complete_task hit a task that was already completed.
	AlreadyDone bool `json:"already_done,omitempty"`
}

// Payload renders the result as a generic map for transports.
func (r *Result) Payload() map[string]any {
	p := map[string]any{"tool": string(r.Tool)}
	if r.Task != nil {
		p["task"] = r.Task
	}
	if r.Tool == ListTasksTool {
		tasks := r.Tasks
		if tasks == nil {
			tasks = []*taskstore.Task{}
		}
		p["tasks"] = tasks
		p["count"] = len(tasks)
	}
	if r.AlreadyDone {
		p["already_done"] = true
	}
	return p
}

// Executor runs validated calls against a task store, always on behalf of
// one user.
type Executor struct {
	store   taskstore.Store
	timeout time.Duration
}

// NewExecutor creates an executor. A zero timeout leaves the caller's
// context untouched.
func NewExecutor(store taskstore.Store, timeout time.Duration) *Executor {
	return &Executor{store: store, timeout: timeout}
}

// Execute performs exactly one store operation for call. It returns
// *ValidationError, *NotFoundError or *ExecutionError on failure.
func (e *Executor) Execute(ctx context.Context, userID string, call Call) (*Result, error) {
	call, err := Validate(call)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.run(ctx, userID, call)
	slog.Debug("tool executed", "tool", call.Tool(), "user_id", userID, "duration", time.Since(start), "error", err)
	return res, err
}

func (e *Executor) run(ctx context.Context, userID string, call Call) (*Result, error) {
	switch c := call.(type) {
	case CreateTask:
		task, err := e.store.Create(ctx, userID, taskstore.NewTask{
			Title:       c.Title,
			Description: c.Description,
			Priority:    c.Priority,
			Tags:        c.Tags,
		})
		if err != nil {
			return nil, storeError(CreateTaskTool, 0, err)
		}
		return &Result{Tool: CreateTaskTool, Task: task}, nil

	case ListTasks:
		tasks, err := e.store.List(ctx, userID, taskstore.Filter{
			Status:   c.Status,
			Priority: c.Priority,
			Search:   c.Search,
		})
		if err != nil {
			return nil, storeError(ListTasksTool, 0, err)
		}
		return &Result{Tool: ListTasksTool, Tasks: tasks}, nil

	case CompleteTask:
		before, err := e.store.Get(ctx, userID, c.TaskID)
		if err != nil {
			return nil, storeError(CompleteTaskTool, c.TaskID, err)
		}
		if before.Completed {
			return &Result{Tool: CompleteTaskTool, Task: before, AlreadyDone: true}, nil
		}
		task, err := e.store.SetCompleted(ctx, userID, c.TaskID, true)
		if err != nil {
			return nil, storeError(CompleteTaskTool, c.TaskID, err)
		}
		return &Result{Tool: CompleteTaskTool, Task: task}, nil

	case UpdateTask:
		task, err := e.store.Update(ctx, userID, c.TaskID, taskstore.Patch{
			Title:       c.Title,
			Description: c.Description,
			Priority:    c.Priority,
			Tags:        c.Tags,
			SetTags:     c.SetTags,
		})
		if err != nil {
			return nil, storeError(UpdateTaskTool, c.TaskID, err)
		}
		return &Result{Tool: UpdateTaskTool, Task: task}, nil

	case DeleteTask:
		// Fetch first so the confirmation can name the task.
		task, err := e.store.Get(ctx, userID, c.TaskID)
		if err != nil {
			return nil, storeError(DeleteTaskTool, c.TaskID, err)
		}
		ok, err := e.store.Delete(ctx, userID, c.TaskID)
		if err != nil {
			return nil, storeError(DeleteTaskTool, c.TaskID, err)
		}
		if !ok {
			return nil, &NotFoundError{TaskID: c.TaskID}
		}
		return &Result{Tool: DeleteTaskTool, Task: task}, nil

	default:
		return nil, ErrUnknownTool
	}
}

func storeError(tool ToolName, id int64, err error) error {
	if errors.Is(err, taskstore.ErrNotFound) {
		return &NotFoundError{TaskID: id}
	}
	return &ExecutionError{Tool: tool, Cause: err}
}
