// Package mcpserver exposes the engine as MCP tools and resources.
//
// Each tool follows the same shape: a struct holding the engine, a
// Definition() returning the mcp.Tool schema and a Handle() method. Tool
// failures are returned as tool results, never as protocol errors.
package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/initializ/cip/policy"
)

// policyArgs are the arguments shared by every tool that accepts a policy.
func policyArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("policy",
			mcp.Description("Natural-language constraint text, e.g. \"be more creative, skip disclaimers\""),
		),
		mcp.WithString("preset",
			mcp.Description("Named preset: creative, precise, aggressive, balanced or a domain preset"),
		),
		mcp.WithString("policy_json",
			mcp.Description("Run policy object as JSON, e.g. {\"temperature\": 0.4, \"output_format\": \"bullet_points\"}"),
		),
	}
}

// policyArg builds a policy expression from the request arguments.
func policyArg(req mcp.CallToolRequest) (policy.Expression, error) {
	expr := policy.Expression{
		Text:   req.GetString("policy", ""),
		Preset: req.GetString("preset", ""),
	}
	if raw := req.GetString("policy_json", ""); raw != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return policy.Expression{}, fmt.Errorf("'policy_json' is not a JSON object: %w", err)
		}
		expr.Object = obj
	}
	return expr, nil
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
