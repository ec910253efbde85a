// Package mcp exposes gridpilot over the Model Context Protocol so external
// agents can parse, validate, and execute action batches as tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with gridpilot tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"gridpilot",
		version,
		server.WithToolCapabilities(true),
	)

	// Register tools
	s.AddTool(
		mcp.NewTool("gridpilot/parse",
			mcp.WithDescription("Extract a structured {message, actions[]} envelope from raw agent text"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Raw agent response text")),
		),
		HandleParse,
	)

	s.AddTool(
		mcp.NewTool("gridpilot/validate",
			mcp.WithDescription("Validate a structured action response JSON file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the response JSON file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("gridpilot/exec",
			mcp.WithDescription("Execute an action batch against a workbook (validated results, collision-guarded writes)"),
			mcp.WithString("document", mcp.Required(), mcp.Description("Path to the .xlsx workbook")),
			mcp.WithString("actions", mcp.Required(), mcp.Description("Path to the actions JSON file (envelope or bare array)")),
			mcp.WithString("mode", mcp.Description("Execution mode: real or dry-run")),
		),
		HandleExec,
	)

	s.AddTool(
		mcp.NewTool("gridpilot/index",
			mcp.WithDescription("Build the column catalogue for a workbook sheet"),
			mcp.WithString("document", mcp.Required(), mcp.Description("Path to the .xlsx workbook")),
			mcp.WithString("sheet", mcp.Description("Sheet name (defaults to the active sheet)")),
		),
		HandleIndex,
	)

	s.AddTool(
		mcp.NewTool("gridpilot/schema",
			mcp.WithDescription("Export the structured action response JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
