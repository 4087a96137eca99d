package policy

import (
	"fmt"
	"strings"
)

// Expression is a policy request in any of its accepted forms. Forms that are
// present are merged in the order Preset, Object, Policy, Text, so free-text
// constraints have the last word.
type Expression struct {
	Preset string         `json:"preset,omitempty"`
	Object map[string]any `json:"object,omitempty"`
	Policy *RunPolicy     `json:"policy,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// IsZero reports whether e carries no policy at all.
func (e Expression) IsZero() bool {
	return strings.TrimSpace(e.Preset) == "" && len(e.Object) == 0 && e.Policy == nil && strings.TrimSpace(e.Text) == ""
}

// Resolver normalizes expressions into a single RunPolicy.
type Resolver struct {
	presets *PresetRegistry
	parser  *ConstraintParser
}

// NewResolver returns a resolver over presets. A nil registry gets the builtins.
func NewResolver(presets *PresetRegistry) *Resolver {
	if presets == nil {
		presets = NewPresetRegistry(true)
	}
	return &Resolver{presets: presets, parser: NewConstraintParser(presets)}
}

// Presets returns the registry the resolver reads.
func (r *Resolver) Presets() *PresetRegistry { return r.presets }

// Resolve merges every form present in expr. An unknown preset name or an
// invalid object is an error; constraint text never is, and reports what it
// could not use in Unrecognized.
func (r *Resolver) Resolve(expr Expression) (Resolution, error) {
	var res Resolution
	if name := strings.TrimSpace(expr.Preset); name != "" {
		p, err := r.presets.Policy(name)
		if err != nil {
			return Resolution{}, err
		}
		res.Policy = res.Policy.Merge(p)
	}
	if len(expr.Object) > 0 {
		p, err := DecodePolicy(expr.Object)
		if err != nil {
			return Resolution{}, err
		}
		p.Source = "object"
		res.Policy = res.Policy.Merge(p)
	}
	if expr.Policy != nil {
		if err := expr.Policy.Validate(); err != nil {
			return Resolution{}, err
		}
		p := *expr.Policy
		if p.Source == "" {
			p.Source = "direct"
		}
		res.Policy = res.Policy.Merge(p)
	}
	if strings.TrimSpace(expr.Text) != "" {
		parsed := r.parser.Parse(expr.Text)
		res.Policy = res.Policy.Merge(parsed.Policy)
		res.Parsed = parsed.Parsed
		res.Unrecognized = parsed.Unrecognized
		res.Malformed = parsed.Malformed
	}
	if err := res.Policy.Validate(); err != nil {
		return Resolution{}, fmt.Errorf("resolved policy: %w", err)
	}
	return res, nil
}

// ResolveText is Resolve for constraint text alone.
func (r *Resolver) ResolveText(text string) Resolution {
	return r.parser.Parse(text)
}
