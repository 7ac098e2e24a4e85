package tools

import (
	"strings"
	"unicode/utf8"

	"github.com/dohr-michael/taskchat/internal/taskstore"
)

// Validate checks call against the domain rules and returns it normalized:
// titles trimmed, tags trimmed and deduplicated, priority defaulted.
// Nothing touches the store when Validate fails.
func Validate(call Call) (Call, error) {
	switch c := call.(type) {
	case CreateTask:
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			return nil, &ValidationError{Tool: CreateTaskTool, Field: "title", Reason: "must not be empty"}
		}
		c.Description = strings.TrimSpace(c.Description)
		if c.Priority == "" {
			c.Priority = taskstore.PriorityMedium
		}
		if !c.Priority.Valid() {
			return nil, &ValidationError{Tool: CreateTaskTool, Field: "priority", Reason: "must be low, medium or high"}
		}
		tags, err := normalizeTags(CreateTaskTool, c.Tags)
		if err != nil {
			return nil, err
		}
		c.Tags = tags
		return c, nil

	case ListTasks:
		switch c.Status {
		case "", taskstore.StatusAll, taskstore.StatusPending, taskstore.StatusCompleted:
		default:
			return nil, &ValidationError{Tool: ListTasksTool, Field: "status_filter", Reason: "must be all, pending or completed"}
		}
		if c.Priority != "" && !c.Priority.Valid() {
			return nil, &ValidationError{Tool: ListTasksTool, Field: "priority_filter", Reason: "must be low, medium or high"}
		}
		c.Search = strings.TrimSpace(c.Search)
		return c, nil

	case CompleteTask:
		if c.TaskID <= 0 {
			return nil, &ValidationError{Tool: CompleteTaskTool, Field: "task_id", Reason: "must be a positive integer"}
		}
		return c, nil

	case DeleteTask:
		if c.TaskID <= 0 {
			return nil, &ValidationError{Tool: DeleteTaskTool, Field: "task_id", Reason: "must be a positive integer"}
		}
		return c, nil

	case UpdateTask:
		if c.TaskID <= 0 {
			return nil, &ValidationError{Tool: UpdateTaskTool, Field: "task_id", Reason: "must be a positive integer"}
		}
		if c.Title != nil {
			t := strings.TrimSpace(*c.Title)
			if t == "" {
				return nil, &ValidationError{Tool: UpdateTaskTool, Field: "title", Reason: "must not be empty"}
			}
			c.Title = &t
		}
		if c.Description != nil {
			d := strings.TrimSpace(*c.Description)
			c.Description = &d
		}
		if c.Priority != nil && !c.Priority.Valid() {
			return nil, &ValidationError{Tool: UpdateTaskTool, Field: "priority", Reason: "must be low, medium or high"}
		}
		if c.SetTags {
			tags, err := normalizeTags(UpdateTaskTool, c.Tags)
			if err != nil {
				return nil, err
			}
			c.Tags = tags
		}
		if c.Title == nil && c.Description == nil && c.Priority == nil && !c.SetTags {
			return nil, &ValidationError{Tool: UpdateTaskTool, Reason: "nothing to update"}
		}
		return c, nil

	case nil:
		return nil, &ValidationError{Reason: "no tool call"}
	default:
		return nil, ErrUnknownTool
	}
}

func normalizeTags(tool ToolName, tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, &ValidationError{Tool: tool, Field: "tags", Reason: "entries must be at most 50 characters"}
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, &ValidationError{Tool: tool, Field: "tags", Reason: "must contain at most 10 entries"}
	}
	return out, nil
}
