// Package mcp exposes the task tools of one user as an MCP server.
package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/taskchat/internal/tools"
)

// toolSpecToMCPTool converts a tools.ToolSpec to an mcp.Tool with JSON Schema.
func toolSpecToMCPTool(spec tools.ToolSpec) *mcpsdk.Tool {
	props := make(map[string]any, len(spec.Parameters))
	for name, p := range spec.Parameters {
		props[name] = paramSchema(p)
	}

	inputSchema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if required := spec.Required(); len(required) > 0 {
		inputSchema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        string(spec.Name),
		Description: spec.Description,
		InputSchema: inputSchema,
	}
}

func paramSchema(p tools.ParamSpec) map[string]any {
	prop := map[string]any{"type": p.Type}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		prop["enum"] = p.Enum
	}
	if p.Items != nil {
		prop["items"] = paramSchema(*p.Items)
	}
	return prop
}
