package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/initializ/cip"
	"github.com/initializ/cip/policy"
	"github.com/initializ/cip/selection"
)

// SelectTool handles the cip_select_scaffold MCP tool.
type SelectTool struct {
	engine *cip.Engine
}

// NewSelectTool creates a SelectTool.
func NewSelectTool(engine *cip.Engine) *SelectTool {
	return &SelectTool{engine: engine}
}

// Definition returns the MCP tool definition for cip_select_scaffold.
func (t *SelectTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Pick the reasoning scaffold for a request. Returns the chosen scaffold id, how it was chosen, " +
				"per-scaffold scores and the effective settings after applying the optional run policy.",
		),
		mcp.WithString("user_input",
			mcp.Description("The end user's request text"),
		),
		mcp.WithString("tool_name",
			mcp.Description("Name of the tool the caller is about to use, if any"),
		),
		mcp.WithString("scaffold_id",
			mcp.Description("Explicit scaffold id; skips scoring"),
		),
		mcp.WithString("output_hint",
			mcp.Description("Desired output format, e.g. bullet_points"),
		),
	}
	return mcp.NewTool("cip_select_scaffold", append(opts, policyArgs()...)...)
}

type selectResponse struct {
	ScaffoldID     string             `json:"scaffold_id"`
	Mode           selection.Mode     `json:"mode"`
	Reason         string             `json:"reason"`
	Confidence     float64            `json:"confidence"`
	Ambiguous      bool               `json:"ambiguous,omitempty"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	ToolCandidates []string           `json:"tool_candidates,omitempty"`
	Unrecognized   []string           `json:"unrecognized_clauses,omitempty"`
	Effective      *policy.Effective  `json:"effective"`
}

// Handle processes the cip_select_scaffold tool call.
func (t *SelectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := policyArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.engine.Select(cip.SelectRequest{
		ToolName:   req.GetString("tool_name", ""),
		UserInput:  req.GetString("user_input", ""),
		ScaffoldID: req.GetString("scaffold_id", ""),
		OutputHint: req.GetString("output_hint", ""),
		Policy:     expr,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("selection failed: %v", err)), nil
	}
	return jsonResult(selectResponse{
		ScaffoldID:     res.Selection.ScaffoldID,
		Mode:           res.Selection.Mode,
		Reason:         res.Selection.Reason,
		Confidence:     res.Selection.Confidence,
		Ambiguous:      res.Selection.Ambiguous,
		Scores:         res.Selection.Scores,
		ToolCandidates: res.Selection.ToolCandidates,
		Unrecognized:   res.Policy.Unrecognized,
		Effective:      res.Effective,
	}), nil
}
