package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// TaskTool adapts one registered operation to Eino's tool.InvokableTool,
// bound to a single user.
type TaskTool struct {
	spec     ToolSpec
	registry *Registry
	exec     *Executor
	userID   string
}

// BindTools returns an invokable tool per registered operation, each acting
// on behalf of userID.
func BindTools(registry *Registry, exec *Executor, userID string) []*TaskTool {
	specs := registry.Describe()
	out := make([]*TaskTool, len(specs))
	for i, s := range specs {
		out[i] = &TaskTool{spec: s, registry: registry, exec: exec, userID: userID}
	}
	return out
}

// Spec returns the tool's declaration.
func (t *TaskTool) Spec() ToolSpec { return t.spec }

// Info returns the ToolInfo for Eino registration.
func (t *TaskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun decodes the arguments, executes the call and returns the
// result payload as JSON.
func (t *TaskTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	call, err := t.registry.DecodeCall(string(t.spec.Name), argumentsInJSON)
	if err != nil {
		return "", err
	}
	res, err := t.exec.Execute(ctx, t.userID, call)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res.Payload())
	if err != nil {
		return "", fmt.Errorf("%s: marshal result: %w", t.spec.Name, err)
	}
	return string(out), nil
}

var _ tool.InvokableTool = (*TaskTool)(nil)
