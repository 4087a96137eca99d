package policy

import (
	"fmt"
	"sort"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/types"
)

// Effective is the per-request result of laying a RunPolicy over a scaffold
// and its domain. Precedence is policy, then scaffold, then domain.
type Effective struct {
	ScaffoldID        string             `json:"scaffold_id"`
	Temperature       *float64           `json:"temperature,omitempty"`
	MaxTokens         *int               `json:"max_tokens,omitempty"`
	OutputFormat      string             `json:"output_format"`
	MaxLengthGuidance string             `json:"max_length_guidance,omitempty"`
	Tone              string             `json:"tone,omitempty"`
	ToneVariant       string             `json:"tone_variant,omitempty"`
	Compact           bool               `json:"compact,omitempty"`
	Disclaimers       []string           `json:"disclaimers,omitempty"`
	ProhibitedActions []string           `json:"prohibited_actions,omitempty"`
	MustInclude       []string           `json:"must_include,omitempty"`
	NeverInclude      []string           `json:"never_include,omitempty"`
	Bias              map[string]float64 `json:"scaffold_selection_bias,omitempty"`
	// Notes explain policy requests that could not be honoured.
	Notes      []string           `json:"notes,omitempty"`
	Guardrails guardrail.Settings `json:"guardrails"`
}

// Apply lays p over s and domain. domain may be nil. Domain prohibited
// indicators are always enforced: removing a prohibited action only changes
// what the prompt lists, never what the output check looks for.
func Apply(s *scaffold.Scaffold, domain *types.DomainConfig, p RunPolicy) *Effective {
	e := &Effective{
		ScaffoldID:   s.ID,
		OutputFormat: s.OutputCalibration.Format,
		Tone:         s.Framing.Tone,
		Bias:         p.ScaffoldSelectionBias,
	}
	if e.OutputFormat == "" {
		e.OutputFormat = scaffold.DefaultFormat
	}

	if domain != nil {
		e.Temperature = domain.Defaults.Temperature
		e.MaxTokens = domain.Defaults.MaxTokens
	}
	if p.Temperature != nil {
		e.Temperature = p.Temperature
	}
	if p.MaxTokens != nil {
		e.MaxTokens = p.MaxTokens
	}

	if p.OutputFormat != nil {
		if s.SupportsFormat(*p.OutputFormat) {
			e.OutputFormat = *p.OutputFormat
		} else {
			e.Notes = append(e.Notes, fmt.Sprintf("output format %q not supported by %s; using %q", *p.OutputFormat, s.ID, e.OutputFormat))
		}
	}

	e.MaxLengthGuidance = s.OutputCalibration.MaxLengthGuidance
	if p.MaxLengthGuidance != nil {
		e.MaxLengthGuidance = *p.MaxLengthGuidance
	}

	if p.ToneVariant != nil {
		if tone, ok := s.ToneVariant(*p.ToneVariant); ok {
			e.Tone = tone
			e.ToneVariant = *p.ToneVariant
		} else {
			e.Notes = append(e.Notes, fmt.Sprintf("tone variant %q not declared by %s", *p.ToneVariant, s.ID))
		}
	}
	if p.Compact != nil {
		e.Compact = *p.Compact
	}

	if !p.SkipsDisclaimers() {
		e.Disclaimers = union(s.Guardrails.Disclaimers, nil)
	}

	e.ProhibitedActions = activeActions(s.Guardrails.ProhibitedActions, p, &e.Notes)
	e.MustInclude = union(s.OutputCalibration.MustInclude, p.ExtraMustInclude)
	e.NeverInclude = union(s.OutputCalibration.NeverInclude, p.ExtraNeverInclude)

	e.Guardrails = guardrail.Settings{
		Disclaimers:        e.Disclaimers,
		EscalationTriggers: union(s.Guardrails.EscalationTriggers, nil),
		NeverInclude:       e.NeverInclude,
	}
	if domain != nil {
		e.Guardrails.Indicators = indicatorSets(domain.ProhibitedIndicators)
		e.Guardrails.PatternRules = patternRules(domain.RegexGuardrailPolicies)
		e.Guardrails.RedactionMarker = domain.RedactionMessage
		e.Guardrails.RedactionScope = guardrail.Scope(domain.RedactionScope)
		e.Guardrails.EscalationAction = guardrail.Action(domain.EscalationAction)
		for _, g := range domain.Guardrails {
			e.Guardrails.Builtins = append(e.Guardrails.Builtins, guardrail.Spec{Type: g.Type, Config: g.Config})
		}
	}
	return e
}

func activeActions(declared []string, p RunPolicy, notes *[]string) []string {
	all := union(declared, p.ExtraProhibitedActions)
	if p.RemovesAll() {
		return nil
	}
	if len(p.RemoveProhibitedActions) == 0 {
		return all
	}
	remove := make(map[string]bool, len(p.RemoveProhibitedActions))
	for _, r := range p.RemoveProhibitedActions {
		remove[r] = true
	}
	var out []string
	for _, a := range all {
		if remove[a] {
			delete(remove, a)
			continue
		}
		out = append(out, a)
	}
	for _, r := range p.RemoveProhibitedActions {
		if remove[r] {
			*notes = append(*notes, fmt.Sprintf("allow %q: not a prohibited action", r))
		}
	}
	return out
}

func indicatorSets(m map[string][]string) []guardrail.IndicatorSet {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]guardrail.IndicatorSet, 0, len(keys))
	for _, k := range keys {
		out = append(out, guardrail.IndicatorSet{Category: k, Phrases: m[k]})
	}
	return out
}

func patternRules(m map[string]string) []guardrail.PatternRule {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]guardrail.PatternRule, 0, len(keys))
	for _, k := range keys {
		out = append(out, guardrail.PatternRule{Name: k, Pattern: m[k]})
	}
	return out
}
