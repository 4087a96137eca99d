// Package types holds the domain configuration that parameterizes selection
// defaults, guardrail indicators and custom presets.
package types

import (
	"fmt"

	"github.com/initializ/cip/selection"
	"gopkg.in/yaml.v3"
)

// DefaultRedactionMessage replaces redacted content when a domain sets none.
const DefaultRedactionMessage = "[Removed: contains prohibited content]"

// DomainConfig is the per-domain configuration file (domain.yaml).
type DomainConfig struct {
	Name                   string              `json:"name" yaml:"name"`
	DisplayName            string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	SystemPrompt           string              `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	DefaultScaffoldID      string              `json:"default_scaffold_id,omitempty" yaml:"default_scaffold_id,omitempty"`
	DataContextLabel       string              `json:"data_context_label,omitempty" yaml:"data_context_label,omitempty"`
	ProhibitedIndicators   map[string][]string `json:"prohibited_indicators,omitempty" yaml:"prohibited_indicators,omitempty"`
	RegexGuardrailPolicies map[string]string   `json:"regex_guardrail_policies,omitempty" yaml:"regex_guardrail_policies,omitempty"`
	RedactionMessage       string              `json:"redaction_message,omitempty" yaml:"redaction_message,omitempty"`
	RedactionScope         string              `json:"redaction_scope,omitempty" yaml:"redaction_scope,omitempty"`         // span, sentence
	EscalationAction       string              `json:"escalation_action,omitempty" yaml:"escalation_action,omitempty"`     // flag, halt
	Guardrails             []GuardrailRef      `json:"guardrails,omitempty" yaml:"guardrails,omitempty"`
	Selection              selection.Params    `json:"selection" yaml:"selection,omitempty"`
	Presets                []PresetRef         `json:"presets,omitempty" yaml:"presets,omitempty"`
	Defaults               GenerationDefaults  `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// GuardrailRef enables a builtin detector type with its config.
type GuardrailRef struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// PresetRef declares a named preset. Policy is decoded into a RunPolicy by
// the policy package.
type PresetRef struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Policy      map[string]any `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// GenerationDefaults are domain-level generation settings, the lowest
// precedence layer under scaffold and per-request policy.
type GenerationDefaults struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// NewDomainConfig returns a config with the given name and default settings.
func NewDomainConfig(name string) *DomainConfig {
	return &DomainConfig{
		Name:             name,
		RedactionMessage: DefaultRedactionMessage,
		Selection:        selection.DefaultParams(),
	}
}

// ParseDomainConfig parses raw YAML bytes into a DomainConfig and validates
// required fields. Selection params absent from the document keep their
// defaults.
func ParseDomainConfig(data []byte) (*DomainConfig, error) {
	cfg := NewDomainConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing domain config: %w", err)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("domain config: name is required")
	}
	if cfg.RedactionMessage == "" {
		cfg.RedactionMessage = DefaultRedactionMessage
	}
	for i, g := range cfg.Guardrails {
		if g.Type == "" {
			return nil, fmt.Errorf("domain config: guardrails[%d]: type is required", i)
		}
	}
	for i, p := range cfg.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("domain config: presets[%d]: name is required", i)
		}
	}
	return cfg, nil
}
