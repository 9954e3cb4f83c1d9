package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kononmatsumoto/webcloner/clone"
)

// ToolClone is the MCP tool name for a clone run.
const ToolClone = "clone_website"

// NewMCPServer returns an MCP server exposing the clone_website tool.
func NewMCPServer(c Cloner, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "webcloner", Version: version}, nil)
	RegisterMCP(srv, c)
	return srv
}

// RegisterMCP adds the clone_website tool to srv. The tool returns the clone
// result JSON as text and flags failed runs as tool errors.
func RegisterMCP(srv *mcp.Server, c Cloner) {
	tool := &mcp.Tool{
		Name:        ToolClone,
		Description: "Render a public web page, extract its design and generate a new self-contained HTML document in the same visual style.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http or https URL of the page to clone",
				},
			},
			"required": []string{"url"},
		},
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in clone.Request
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		out := c.Clone(ctx, in)
		data, err := json.Marshal(out)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			IsError: !out.Success,
		}, nil
	})
}
