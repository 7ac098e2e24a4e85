package mcp

import (
	"context"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/taskchat/internal/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer creates an MCP server exposing the registry's tools, each
// acting on behalf of userID. filter is an optional comma-separated list of
// tool names to expose.
func NewMCPServer(registry *tools.Registry, exec *tools.Executor, userID, filter string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "taskchat",
		Version: Version,
	}, nil)

	allowed := parseFilter(filter)
	for _, t := range tools.BindTools(registry, exec, userID) {
		spec := t.Spec()
		if !allowed.matches(spec.Name) {
			continue
		}

		invokable := t
		server.AddTool(toolSpecToMCPTool(spec), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return callTool(ctx, invokable, string(req.Params.Arguments)), nil
		})

		slog.Debug("mcp tool registered", "tool", spec.Name, "user_id", userID)
	}

	return server
}

// callTool runs the tool and reports failures as tool errors so the client
// can show them.
func callTool(ctx context.Context, t *tools.TaskTool, args string) *mcpsdk.CallToolResult {
	if args == "" {
		args = "{}"
	}
	result, err := t.InvokableRun(ctx, args)
	if err != nil {
		slog.Debug("mcp tool error", "tool", t.Spec().Name, "kind", tools.ErrorKind(err), "error", err)
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		}
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: result}},
	}
}

type toolFilter map[tools.ToolName]bool

func parseFilter(filter string) toolFilter {
	f := toolFilter{}
	for _, name := range strings.Split(filter, ",") {
		if name = strings.TrimSpace(name); name != "" {
			f[tools.ToolName(name)] = true
		}
	}
	return f
}

// matches reports whether name is exposed; an empty filter exposes all.
func (f toolFilter) matches(name tools.ToolName) bool {
	return len(f) == 0 || f[name]
}
