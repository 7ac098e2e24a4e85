package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dohr-michael/taskchat/internal/taskstore"
)

// Call is a resolved tool invocation. The concrete type determines the
// operation; the set of implementations is closed.
type Call interface {
	Tool() ToolName
	isCall()
}

// CreateTask creates a task.
type CreateTask struct {
	Title       string
	Description string
	Priority    taskstore.Priority
	Tags        []string
}

// ListTasks lists tasks matching every set filter.
type ListTasks struct {
	Status   taskstore.Status
	Priority taskstore.Priority
	Search   string
}

// CompleteTask marks a task as done.
type CompleteTask struct {
	TaskID int64
}

// UpdateTask changes the set fields of a task.
type UpdateTask struct {
	TaskID      int64
	Title       *string
	Description *string
	Priority    *taskstore.Priority
	Tags        []string
	SetTags     bool
}

// DeleteTask removes a task.
type DeleteTask struct {
	TaskID int64
}

func (CreateTask) Tool() ToolName   { return CreateTaskTool }
func (ListTasks) Tool() ToolName    { return ListTasksTool }
func (CompleteTask) Tool() ToolName { return CompleteTaskTool }
func (UpdateTask) Tool() ToolName   { return UpdateTaskTool }
func (DeleteTask) Tool() ToolName   { return DeleteTaskTool }

func (CreateTask) isCall()   {}
func (ListTasks) isCall()    {}
func (CompleteTask) isCall() {}
func (UpdateTask) isCall()   {}
func (DeleteTask) isCall()   {}

// DecodeCall checks argsJSON against the registered schema of name and
// builds the matching Call.
func (r *Registry) DecodeCall(name, argsJSON string) (Call, error) {
	spec, ok := r.Lookup(ToolName(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	args := map[string]any{}
	if s := strings.TrimSpace(argsJSON); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return nil, &ValidationError{Tool: spec.Name, Reason: "arguments are not a JSON object"}
		}
	}

	a := argReader{tool: spec.Name, spec: spec, args: args}
	for _, field := range spec.Required() {
		if v, ok := args[field]; !ok || v == nil {
			return nil, &ValidationError{Tool: spec.Name, Field: field, Reason: "is required"}
		}
	}

	var call Call
	switch spec.Name {
	case CreateTaskTool:
		call = CreateTask{
			Title:       a.str("title"),
			Description: a.str("description"),
			Priority:    taskstore.Priority(a.enum("priority")),
			Tags:        a.strs("tags"),
		}
	case ListTasksTool:
		call = ListTasks{
			Status:   taskstore.Status(a.enum("status_filter")),
			Priority: taskstore.Priority(a.enum("priority_filter")),
			Search:   a.str("search_text"),
		}
	case CompleteTaskTool:
		call = CompleteTask{TaskID: a.integer("task_id")}
	case UpdateTaskTool:
		u := UpdateTask{
			TaskID:      a.integer("task_id"),
			Title:       a.optStr("title"),
			Description: a.optStr("description"),
		}
		if p := a.optStr("priority"); p != nil {
			pr := taskstore.Priority(a.enum("priority"))
			u.Priority = &pr
		}
		if _, ok := args["tags"]; ok && args["tags"] != nil {
			u.Tags, u.SetTags = a.strs("tags"), true
		}
		call = u
	case DeleteTaskTool:
		call = DeleteTask{TaskID: a.integer("task_id")}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if a.err != nil {
		return nil, a.err
	}
	return call, nil
}

// argReader extracts typed values from decoded JSON, keeping the first error.
type argReader struct {
	tool ToolName
	spec ToolSpec
	args map[string]any
	err  error
}

func (a *argReader) fail(field, reason string) {
	if a.err == nil {
		a.err = &ValidationError{Tool: a.tool, Field: field, Reason: reason}
	}
}

func (a *argReader) optStr(field string) *string {
	v, ok := a.args[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		a.fail(field, "must be a string")
		return nil
	}
	return &s
}

func (a *argReader) str(field string) string {
	if s := a.optStr(field); s != nil {
		return *s
	}
	return ""
}

func (a *argReader) enum(field string) string {
	s := strings.ToLower(strings.TrimSpace(a.str(field)))
	if s == "" {
		return ""
	}
	for _, allowed := range a.spec.Parameters[field].Enum {
		if s == allowed {
			return s
		}
	}
	a.fail(field, fmt.Sprintf("must be one of %s", strings.Join(a.spec.Parameters[field].Enum, ", ")))
	return ""
}

func (a *argReader) integer(field string) int64 {
	switch v := a.args[field].(type) {
	case float64:
		if v != math.Trunc(v) {
			a.fail(field, "must be an integer")
			return 0
		}
		return int64(v)
	case string:
		// Models occasionally quote numbers.
		n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(v), "#"), 10, 64)
		if err != nil {
			a.fail(field, "must be an integer")
			return 0
		}
		return n
	case nil:
		return 0
	default:
		a.fail(field, "must be an integer")
		return 0
	}
}

func (a *argReader) strs(field string) []string {
	v, ok := a.args[field]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		a.fail(field, "must be an array of strings")
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			a.fail(field, "must be an array of strings")
			return nil
		}
		out = append(out, s)
	}
	return out
}

// Arguments renders call back to the JSON object form used on the wire.
func Arguments(call Call) map[string]any {
	args := map[string]any{}
	switch c := call.(type) {
	case CreateTask:
		args["title"] = c.Title
		if c.Description != "" {
			args["description"] = c.Description
		}
		if c.Priority != "" {
			args["priority"] = string(c.Priority)
		}
		if len(c.Tags) > 0 {
			args["tags"] = c.Tags
		}
	case ListTasks:
		if c.Status != "" {
			args["status_filter"] = string(c.Status)
		}
		if c.Priority != "" {
			args["priority_filter"] = string(c.Priority)
		}
		if c.Search != "" {
			args["search_text"] = c.Search
		}
	case CompleteTask:
		args["task_id"] = c.TaskID
	case UpdateTask:
		args["task_id"] = c.TaskID
		if c.Title != nil {
			args["title"] = *c.Title
		}
		if c.Description != nil {
			args["description"] = *c.Description
		}
		if c.Priority != nil {
			args["priority"] = string(*c.Priority)
		}
		if c.SetTags {
			args["tags"] = c.Tags
		}
	case DeleteTask:
		args["task_id"] = c.TaskID
	}
	return args
}
