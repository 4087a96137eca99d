package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/initializ/cip"
	"github.com/initializ/cip/selection"
)

// Resources serves read-only views of the loaded registry.
type Resources struct {
	engine *cip.Engine
}

// NewResources creates a Resources handler.
func NewResources(engine *cip.Engine) *Resources {
	return &Resources{engine: engine}
}

// ScaffoldsResource returns the resource definition for the scaffold list.
func (r *Resources) ScaffoldsResource() mcp.Resource {
	return mcp.NewResource(
		"cip://scaffolds",
		"Scaffolds",
		mcp.WithResourceDescription("Registered scaffolds with their applicability signals"),
		mcp.WithMIMEType("application/json"),
	)
}

// PresetsResource returns the resource definition for the preset list.
func (r *Resources) PresetsResource() mcp.Resource {
	return mcp.NewResource(
		"cip://presets",
		"Policy presets",
		mcp.WithResourceDescription("Built-in and domain policy presets"),
		mcp.WithMIMEType("application/json"),
	)
}

// HealthResource returns the resource definition for the portfolio health report.
func (r *Resources) HealthResource() mcp.Resource {
	return mcp.NewResource(
		"cip://health",
		"Scaffold health",
		mcp.WithResourceDescription("Per-scaffold layer balance, cross-scaffold coupling and shared applicability signals"),
		mcp.WithMIMEType("application/json"),
	)
}

type scaffoldSummary struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description"`
	Tools         []string `json:"tools,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	IntentSignals []string `json:"intent_signals,omitempty"`
	Default       bool     `json:"default,omitempty"`
}

// HandleScaffolds lists the scaffolds of the current registry generation.
func (r *Resources) HandleScaffolds(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	def := r.engine.Domain().DefaultScaffoldID
	var out []scaffoldSummary
	for _, s := range r.engine.Index().All() {
		out = append(out, scaffoldSummary{
			ID:            s.ID,
			DisplayName:   s.DisplayName,
			Description:   s.Description,
			Tools:         s.Applicability.Tools,
			Keywords:      s.Applicability.Keywords,
			IntentSignals: s.Applicability.IntentSignals,
			Default:       s.ID == def,
		})
	}
	return jsonResource(req.Params.URI, out)
}

// HandlePresets lists the presets of the current registry generation.
func (r *Resources) HandlePresets(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, r.engine.Presets().List())
}

// HandleHealth analyzes the current registry with the default thresholds.
func (r *Resources) HandleHealth(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ph, err := r.engine.Health(selection.DefaultHealthOptions())
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, ph)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
