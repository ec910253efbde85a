package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/index"
	"github.com/gridpilot/gridpilot/pkg/parser"
	"github.com/gridpilot/gridpilot/pkg/runtime"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// HandleParse implements the gridpilot/parse MCP tool.
func HandleParse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	text, _ := args["text"].(string)
	if text == "" {
		return errorResult("text argument is required"), nil
	}

	sr := parser.Parse(text)
	data, _ := json.MarshalIndent(sr, "", "  ")
	return textResult(string(data)), nil
}

// HandleValidate implements the gridpilot/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	sr, errs := schema.ValidateFile(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d actions)", path, len(sr.Actions))), nil
}

// HandleExec implements the gridpilot/exec MCP tool.
func HandleExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	docPath, _ := args["document"].(string)
	actionsPath, _ := args["actions"].(string)
	if docPath == "" || actionsPath == "" {
		return errorResult("document and actions arguments are required"), nil
	}
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "dry-run" // safe default for AI agents
	}

	actions, err := schema.LoadActionsFile(actionsPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if errs := schema.ValidateDomain(actions); schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	wb, err := document.OpenWorkbook(docPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer wb.Close()

	engine := runtime.NewEngine(wb)
	batch, err := engine.ExecuteBatch(ctx, runtime.GenerateTurnID(), actions)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if mode == "real" {
		if err := wb.Save(); err != nil {
			return errorResult(err.Error()), nil
		}
	}

	response := map[string]any{
		"turn_id": batch.TurnID,
		"mode":    mode,
		"summary": batch.Summary,
		"results": batch.Results,
	}
	data, _ := json.MarshalIndent(response, "", "  ")

	isErr := batch.Summary.Failed > 0 || batch.Summary.ValidationFailed > 0
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}, nil
}

// HandleIndex implements the gridpilot/index MCP tool.
func HandleIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	docPath, _ := args["document"].(string)
	if docPath == "" {
		return errorResult("document argument is required"), nil
	}
	sheet, _ := args["sheet"].(string)

	wb, err := document.OpenWorkbook(docPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer wb.Close()

	if sheet == "" {
		if sheet, err = wb.ActiveSheet(ctx); err != nil {
			return errorResult(err.Error()), nil
		}
	}
	entries, err := index.New().Build(ctx, wb, sheet, true)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, _ := json.MarshalIndent(map[string]any{"sheet": sheet, "columns": entries}, "", "  ")
	return textResult(string(data)), nil
}

// HandleSchema implements the gridpilot/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
