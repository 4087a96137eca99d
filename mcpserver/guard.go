package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/initializ/cip"
	"github.com/initializ/cip/guardrail"
)

// GuardTool handles the cip_check_guardrails MCP tool.
type GuardTool struct {
	engine *cip.Engine
}

// NewGuardTool creates a GuardTool.
func NewGuardTool(engine *cip.Engine) *GuardTool {
	return &GuardTool{engine: engine}
}

// Definition returns the MCP tool definition for cip_check_guardrails.
func (t *GuardTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Check a generated response against the guardrails of a scaffold and its domain. " +
				"Returns the sanitized text, the interventions made and the disclaimer footer that was appended.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The response text to check"),
		),
		mcp.WithString("scaffold_id",
			mcp.Description("Scaffold whose guardrails apply (default: the domain default scaffold)"),
		),
	}
	return mcp.NewTool("cip_check_guardrails", append(opts, policyArgs()...)...)
}

type guardResponse struct {
	ScaffoldID string                   `json:"scaffold_id"`
	Result     *guardrail.Result        `json:"result"`
	Flags      []guardrail.Intervention `json:"flags,omitempty"`
}

// Handle processes the cip_check_guardrails tool call.
func (t *GuardTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	id := req.GetString("scaffold_id", "")
	if id == "" {
		id = t.engine.Domain().DefaultScaffoldID
	}
	if id == "" {
		return mcp.NewToolResultError("'scaffold_id' is required: the domain has no default scaffold"), nil
	}
	expr, err := policyArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	eff, err := t.engine.Effective(id, expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolving settings: %v", err)), nil
	}
	res, err := t.engine.Evaluate(ctx, text, eff.Guardrails)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("guardrail check failed: %v", err)), nil
	}
	return jsonResult(guardResponse{ScaffoldID: id, Result: res, Flags: res.Flags()}), nil
}
