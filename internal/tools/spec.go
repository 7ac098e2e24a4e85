// Package tools declares the fixed set of task operations and executes them
// against a taskstore.Store on behalf of a single user.
package tools

import (
	"github.com/cloudwego/eino/schema"
)

// ToolName identifies one of the registered operations.
type ToolName string

const (
	CreateTaskTool   ToolName = "create_task"
	ListTasksTool    ToolName = "list_tasks"
	CompleteTaskTool ToolName = "complete_task"
	UpdateTaskTool   ToolName = "update_task"
	DeleteTaskTool   ToolName = "delete_task"
)

// ActionNone is reported when a request did not dispatch any tool.
const ActionNone = "none"

// Limits enforced on task fields.
const (
	MaxTags      = 10
	MaxTagLength = 50
)

// ToolSpec describes a single tool and its parameter contract.
type ToolSpec struct {
	Name        ToolName             `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	// Order lists parameter names for stable rendering.
	Order []string `json:"-"`
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string     `json:"type"` // "string", "integer", "array"
	Description string     `json:"description"`
	Required    bool       `json:"required"`
	Enum        []string   `json:"enum,omitempty"`
	Items       *ParamSpec `json:"items,omitempty"`
}

// Required returns the names of required parameters in declaration order.
func (s ToolSpec) Required() []string {
	var out []string
	for _, name := range s.Order {
		if s.Parameters[name].Required {
			out = append(out, name)
		}
	}
	return out
}

var priorityEnum = []string{"low", "medium", "high"}

// BuiltinSpecs returns the task operations in declaration order.
func BuiltinSpecs() []ToolSpec {
	taskID := ParamSpec{Type: "integer", Description: "Numeric id of the task", Required: true}
	tags := ParamSpec{
		Type:        "array",
		Description: "Labels for the task (at most 10, each at most 50 characters)",
		Items:       &ParamSpec{Type: "string"},
	}

	return []ToolSpec{
		{
			Name:        CreateTaskTool,
			Description: "Create a new task for the user.",
			Parameters: map[string]ParamSpec{
				"title":       {Type: "string", Description: "Short title of the task", Required: true},
				"description": {Type: "string", Description: "Optional longer description"},
				"priority":    {Type: "string", Description: "Task priority, defaults to medium", Enum: priorityEnum},
				"tags":        tags,
			},
			Order: []string{"title", "description", "priority", "tags"},
		},
		{
			Name:        ListTasksTool,
			Description: "List the user's tasks. Filters combine with AND.",
			Parameters: map[string]ParamSpec{
				"status_filter":   {Type: "string", Description: "Completion status to show", Enum: []string{"all", "pending", "completed"}},
				"priority_filter": {Type: "string", Description: "Only tasks with this priority", Enum: priorityEnum},
				"search_text":     {Type: "string", Description: "Case-insensitive text matched against title or description"},
			},
			Order: []string{"status_filter", "priority_filter", "search_text"},
		},
		{
			Name:        CompleteTaskTool,
			Description: "Mark a task as done.",
			Parameters:  map[string]ParamSpec{"task_id": taskID},
			Order:       []string{"task_id"},
		},
		{
			Name:        UpdateTaskTool,
			Description: "Change the title, description, priority or tags of a task.",
			Parameters: map[string]ParamSpec{
				"task_id":     taskID,
				"title":       {Type: "string", Description: "New title"},
				"description": {Type: "string", Description: "New description"},
				"priority":    {Type: "string", Description: "New priority", Enum: priorityEnum},
				"tags":        tags,
			},
			Order: []string{"task_id", "title", "description", "priority", "tags"},
		},
		{
			Name:        DeleteTaskTool,
			Description: "Delete a task permanently.",
			Parameters:  map[string]ParamSpec{"task_id": taskID},
			Order:       []string{"task_id"},
		},
	}
}

// ToolInfo converts a ToolSpec to an Eino schema.ToolInfo.
func (s ToolSpec) ToolInfo() *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: string(s.Name),
		Desc: s.Description,
	}
	if len(s.Parameters) > 0 {
		params := make(map[string]*schema.ParameterInfo, len(s.Parameters))
		for name, p := range s.Parameters {
			params[name] = paramInfo(p)
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

func paramInfo(p ParamSpec) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     dataType(p.Type),
		Desc:     p.Description,
		Required: p.Required,
		Enum:     p.Enum,
	}
	if p.Items != nil {
		info.ElemInfo = paramInfo(*p.Items)
	}
	return info
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
