// Package policy resolves per-request run policies from presets, objects and
// free-text constraints, and applies them over scaffold and domain settings.
package policy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrInvalidPolicy is returned for out-of-range or undecodable policy fields.
	ErrInvalidPolicy = errors.New("invalid run policy")
	// ErrUnknownPreset is returned when a named preset is not registered.
	ErrUnknownPreset = errors.New("unknown preset")
)

// Wildcard in RemoveProhibitedActions clears every prohibited action.
const Wildcard = "*"

// RunPolicy is a sparse per-request overlay. A nil scalar or empty list means
// "defer to the scaffold or domain".
type RunPolicy struct {
	Temperature       *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens         *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	OutputFormat      *string  `json:"output_format,omitempty" yaml:"output_format,omitempty" mapstructure:"output_format"`
	MaxLengthGuidance *string  `json:"max_length_guidance,omitempty" yaml:"max_length_guidance,omitempty" mapstructure:"max_length_guidance"`
	ToneVariant       *string  `json:"tone_variant,omitempty" yaml:"tone_variant,omitempty" mapstructure:"tone_variant"`
	SkipDisclaimers   *bool    `json:"skip_disclaimers,omitempty" yaml:"skip_disclaimers,omitempty" mapstructure:"skip_disclaimers"`
	Compact           *bool    `json:"compact,omitempty" yaml:"compact,omitempty" mapstructure:"compact"`

	RemoveProhibitedActions []string `json:"remove_prohibited_actions,omitempty" yaml:"remove_prohibited_actions,omitempty" mapstructure:"remove_prohibited_actions"`
	ExtraProhibitedActions  []string `json:"extra_prohibited_actions,omitempty" yaml:"extra_prohibited_actions,omitempty" mapstructure:"extra_prohibited_actions"`
	ExtraMustInclude        []string `json:"extra_must_include,omitempty" yaml:"extra_must_include,omitempty" mapstructure:"extra_must_include"`
	ExtraNeverInclude       []string `json:"extra_never_include,omitempty" yaml:"extra_never_include,omitempty" mapstructure:"extra_never_include"`

	// ScaffoldSelectionBias multiplies the final score of the named scaffolds.
	ScaffoldSelectionBias map[string]float64 `json:"scaffold_selection_bias,omitempty" yaml:"scaffold_selection_bias,omitempty" mapstructure:"scaffold_selection_bias"`

	// Source records where the policy came from, e.g. "preset:precise+constraint:brief".
	Source string `json:"source,omitempty" yaml:"source,omitempty" mapstructure:"-"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// IsZero reports whether p overrides nothing.
func (p RunPolicy) IsZero() bool {
	return p.Temperature == nil && p.MaxTokens == nil && p.OutputFormat == nil &&
		p.MaxLengthGuidance == nil && p.ToneVariant == nil && p.SkipDisclaimers == nil &&
		p.Compact == nil && len(p.RemoveProhibitedActions) == 0 &&
		len(p.ExtraProhibitedActions) == 0 && len(p.ExtraMustInclude) == 0 &&
		len(p.ExtraNeverInclude) == 0 && len(p.ScaffoldSelectionBias) == 0
}

// SkipsDisclaimers reports whether disclaimers are suppressed.
func (p RunPolicy) SkipsDisclaimers() bool {
	return p.SkipDisclaimers != nil && *p.SkipDisclaimers
}

// RemovesAll reports whether the wildcard removal is present.
func (p RunPolicy) RemovesAll() bool {
	return len(p.RemoveProhibitedActions) == 1 && p.RemoveProhibitedActions[0] == Wildcard
}

// Merge composes p and other. Scalars set in other win; lists are unioned
// in first-seen order; bias entries in other win per key. Once the wildcard
// removal is present it absorbs every specific removal.
func (p RunPolicy) Merge(other RunPolicy) RunPolicy {
	out := RunPolicy{
		Temperature:       pick(p.Temperature, other.Temperature),
		MaxTokens:         pick(p.MaxTokens, other.MaxTokens),
		OutputFormat:      pick(p.OutputFormat, other.OutputFormat),
		MaxLengthGuidance: pick(p.MaxLengthGuidance, other.MaxLengthGuidance),
		ToneVariant:       pick(p.ToneVariant, other.ToneVariant),
		SkipDisclaimers:   pick(p.SkipDisclaimers, other.SkipDisclaimers),
		Compact:           pick(p.Compact, other.Compact),

		RemoveProhibitedActions: normalizeRemovals(union(p.RemoveProhibitedActions, other.RemoveProhibitedActions)),
		ExtraProhibitedActions:  union(p.ExtraProhibitedActions, other.ExtraProhibitedActions),
		ExtraMustInclude:        union(p.ExtraMustInclude, other.ExtraMustInclude),
		ExtraNeverInclude:       union(p.ExtraNeverInclude, other.ExtraNeverInclude),
	}
	if len(p.ScaffoldSelectionBias)+len(other.ScaffoldSelectionBias) > 0 {
		out.ScaffoldSelectionBias = make(map[string]float64, len(p.ScaffoldSelectionBias)+len(other.ScaffoldSelectionBias))
		for k, v := range p.ScaffoldSelectionBias {
			out.ScaffoldSelectionBias[k] = v
		}
		for k, v := range other.ScaffoldSelectionBias {
			out.ScaffoldSelectionBias[k] = v
		}
	}
	switch {
	case p.Source != "" && other.Source != "":
		out.Source = p.Source + "+" + other.Source
	case other.Source != "":
		out.Source = other.Source
	default:
		out.Source = p.Source
	}
	return out
}

// MergeAll folds policies left to right.
func MergeAll(policies ...RunPolicy) RunPolicy {
	var out RunPolicy
	for _, p := range policies {
		out = out.Merge(p)
	}
	return out
}

// Normalize returns p with list fields deduplicated and the wildcard removal
// collapsed.
func (p RunPolicy) Normalize() RunPolicy {
	src := p.Source
	out := RunPolicy{}.Merge(p)
	out.Source = src
	return out
}

// Validate checks value ranges. Errors wrap ErrInvalidPolicy and name the field.
func (p RunPolicy) Validate() error {
	if t := p.Temperature; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 2) {
		return fmt.Errorf("%w: temperature %v must be between 0.0 and 2.0", ErrInvalidPolicy, *t)
	}
	if m := p.MaxTokens; m != nil && *m <= 0 {
		return fmt.Errorf("%w: max_tokens %d must be positive", ErrInvalidPolicy, *m)
	}
	keys := make([]string, 0, len(p.ScaffoldSelectionBias))
	for k := range p.ScaffoldSelectionBias {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := p.ScaffoldSelectionBias[k]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: scaffold_selection_bias[%s] = %v must be a finite non-negative number", ErrInvalidPolicy, k, v)
		}
	}
	return nil
}

func pick[T any](base, over *T) *T {
	if over != nil {
		v := *over
		return &v
	}
	if base != nil {
		v := *base
		return &v
	}
	return nil
}

func union(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func normalizeRemovals(r []string) []string {
	for _, v := range r {
		if v == Wildcard {
			return []string{Wildcard}
		}
	}
	return r
}
