// Package scaffold defines the reasoning-template records that requests are
// routed to, and the immutable index the selector reads them through.
package scaffold

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultFormat is the output format assumed when a scaffold declares none.
const DefaultFormat = "structured_narrative"

// Reasoning depths a scaffold may declare.
const (
	DepthShallow  = "shallow"
	DepthModerate = "moderate"
	DepthDeep     = "deep"
)

// Scaffold is a named reasoning template governing role, steps, output shape
// and guardrails for one class of request. It is never mutated after it has
// been added to an Index.
type Scaffold struct {
	ID                        string             `json:"id" yaml:"id"`
	Version                   string             `json:"version" yaml:"version"`
	Domain                    string             `json:"domain" yaml:"domain"`
	DisplayName               string             `json:"display_name" yaml:"display_name"`
	Description               string             `json:"description" yaml:"description"`
	Applicability             Applicability      `json:"applicability" yaml:"applicability"`
	Framing                   Framing            `json:"framing" yaml:"framing"`
	ReasoningFramework        ReasoningFramework `json:"reasoning_framework" yaml:"reasoning_framework"`
	DomainKnowledgeActivation []string           `json:"domain_knowledge_activation,omitempty" yaml:"domain_knowledge_activation,omitempty"`
	OutputCalibration         OutputCalibration  `json:"output_calibration" yaml:"output_calibration"`
	Guardrails                Guardrails         `json:"guardrails" yaml:"guardrails"`
	ContextAccepts            []ContextField     `json:"context_accepts,omitempty" yaml:"context_accepts,omitempty"`
	ContextExports            []ContextField     `json:"context_exports,omitempty" yaml:"context_exports,omitempty"`
	Tags                      []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Applicability lists the signals that make a scaffold a candidate.
type Applicability struct {
	Tools         []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	IntentSignals []string `json:"intent_signals,omitempty" yaml:"intent_signals,omitempty"`
}

// Framing is the persona the generator adopts.
type Framing struct {
	Role         string            `json:"role,omitempty" yaml:"role,omitempty"`
	Perspective  string            `json:"perspective,omitempty" yaml:"perspective,omitempty"`
	Tone         string            `json:"tone,omitempty" yaml:"tone,omitempty"`
	ToneVariants map[string]string `json:"tone_variants,omitempty" yaml:"tone_variants,omitempty"`
}

// ReasoningFramework holds the ordered reasoning steps and an optional
// declared depth (shallow, moderate, deep).
type ReasoningFramework struct {
	Depth string   `json:"depth,omitempty" yaml:"depth,omitempty"`
	Steps []string `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// OutputCalibration controls the shape of the generated output.
type OutputCalibration struct {
	Format            string   `json:"format,omitempty" yaml:"format,omitempty"`
	FormatOptions     []string `json:"format_options,omitempty" yaml:"format_options,omitempty"`
	MaxLengthGuidance string   `json:"max_length_guidance,omitempty" yaml:"max_length_guidance,omitempty"`
	MustInclude       []string `json:"must_include,omitempty" yaml:"must_include,omitempty"`
	NeverInclude      []string `json:"never_include,omitempty" yaml:"never_include,omitempty"`
}

// Guardrails are the safety settings a scaffold declares.
type Guardrails struct {
	Disclaimers        []string `json:"disclaimers,omitempty" yaml:"disclaimers,omitempty"`
	EscalationTriggers []string `json:"escalation_triggers,omitempty" yaml:"escalation_triggers,omitempty"`
	ProhibitedActions  []string `json:"prohibited_actions,omitempty" yaml:"prohibited_actions,omitempty"`
}

// ContextField declares one cross-domain context value.
type ContextField struct {
	FieldName   string `json:"field_name" yaml:"field_name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParseScaffold parses a YAML scaffold document, applies defaults and checks
// the identity fields.
func ParseScaffold(data []byte) (*Scaffold, error) {
	var s Scaffold
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scaffold: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("scaffold: id is required")
	}
	s.ApplyDefaults()
	return &s, nil
}

// ApplyDefaults fills the output format and format options when absent.
func (s *Scaffold) ApplyDefaults() {
	if s.OutputCalibration.Format == "" {
		s.OutputCalibration.Format = DefaultFormat
	}
	if len(s.OutputCalibration.FormatOptions) == 0 {
		s.OutputCalibration.FormatOptions = []string{s.OutputCalibration.Format}
	}
}

// SupportsFormat reports whether format is the default or a declared option.
func (s *Scaffold) SupportsFormat(format string) bool {
	if format == s.OutputCalibration.Format {
		return true
	}
	for _, f := range s.OutputCalibration.FormatOptions {
		if f == format {
			return true
		}
	}
	return false
}

// ToneVariant returns the tone text for variant, if the scaffold declares it.
func (s *Scaffold) ToneVariant(variant string) (string, bool) {
	t, ok := s.Framing.ToneVariants[variant]
	return t, ok
}

// DepthLevel maps the scaffold's reasoning depth onto [0,1]. A declared depth
// wins; otherwise it is derived from the number of reasoning steps.
func (s *Scaffold) DepthLevel() float64 {
	switch s.ReasoningFramework.Depth {
	case DepthShallow:
		return 0
	case DepthModerate:
		return 0.5
	case DepthDeep:
		return 1
	}
	switch n := len(s.ReasoningFramework.Steps); {
	case n <= 2:
		return 0
	case n <= 5:
		return 0.5
	default:
		return 1
	}
}
