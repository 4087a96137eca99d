package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/initializ/cip"
)

// ResolvePolicyTool handles the cip_resolve_policy MCP tool.
type ResolvePolicyTool struct {
	engine *cip.Engine
}

// NewResolvePolicyTool creates a ResolvePolicyTool.
func NewResolvePolicyTool(engine *cip.Engine) *ResolvePolicyTool {
	return &ResolvePolicyTool{engine: engine}
}

// Definition returns the MCP tool definition for cip_resolve_policy.
func (t *ResolvePolicyTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Resolve a run policy from constraint text, a preset name or a policy object without selecting a scaffold. " +
				"Clauses that could not be understood are listed, never silently dropped.",
		),
	}
	return mcp.NewTool("cip_resolve_policy", append(opts, policyArgs()...)...)
}

// Handle processes the cip_resolve_policy tool call.
func (t *ResolvePolicyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := policyArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if expr.IsZero() {
		return mcp.NewToolResultError("one of 'policy', 'preset' or 'policy_json' is required"), nil
	}
	res, err := t.engine.ResolvePolicy(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("policy resolution failed: %v", err)), nil
	}
	return jsonResult(res), nil
}
