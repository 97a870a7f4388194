// Package mcpserver exposes the scenario runner as a set of MCP tools, so
// an AI agent can validate and run scenarios the same way a human would
// from the CLI. Adapted from pkg/ecosystem/mcp's server/handlers split:
// same tool-registration shape, narrowed to the scenario verb set.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/apirunner/scenario/pkg/driver"
	"github.com/apirunner/scenario/pkg/model"
	"github.com/apirunner/scenario/pkg/scenarioio"
	"github.com/apirunner/scenario/pkg/scenarioschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the scenario tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scenario",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("scenario/validate",
			mcp.WithDescription("Validate a scenario document (YAML or Markdown) against its schema"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the scenario file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("scenario/run",
			mcp.WithDescription("Run a scenario and report pass/fail per step"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the scenario file")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("scenario/schema",
			mcp.WithDescription("Export the scenario document JSON Schema"),
		),
		HandleSchema,
	)

	return s
}

// HandleValidate implements the scenario/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	scn, err := scenarioio.Load(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	errs, err := scenarioschema.Validate(scn)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(errs) > 0 {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", scn.Name, len(scn.Steps))), nil
}

// HandleRun implements the scenario/run MCP tool.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	scn, err := scenarioio.Load(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	result, err := driver.Run(ctx, scn, nil)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	summary := fmt.Sprintf("%s: %s (%d/%d steps passed, %dms)",
		scn.Name, statusWord(result.Success), passedCount(result.Steps), len(result.Steps), result.DurationMS)
	if !result.Success {
		return errorResult(summary + " — " + result.Error), nil
	}
	return textResult(summary), nil
}

// HandleSchema implements the scenario/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := scenarioschema.Generate()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func statusWord(success bool) string {
	if success {
		return "PASS"
	}
	return "FAIL"
}

func passedCount(steps []model.StepResult) int {
	n := 0
	for _, s := range steps {
		if s.Success {
			n++
		}
	}
	return n
}

func formatErrors(errs []*scenarioschema.ValidationError) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return msg
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(msg)}, IsError: true}
}
