package validate

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/types"
)

var (
	knownGuardrailTypes = map[string]bool{
		"content_filter":       true,
		"no_pii":               true,
		"jailbreak_protection": true,
	}
	knownRedactionScopes   = map[string]bool{"": true, "span": true, "sentence": true}
	knownEscalationActions = map[string]bool{"": true, "flag": true, "halt": true}
)

// ValidateDomainConfig checks a DomainConfig for errors and warnings. idx may
// be nil; when set, the default scaffold id is checked against it.
func ValidateDomainConfig(cfg *types.DomainConfig, idx *scaffold.Index) *ValidationResult {
	r := &ValidationResult{}

	if cfg.Name == "" {
		r.Errors = append(r.Errors, "name is required")
	}

	if err := cfg.Selection.Validate(); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("selection: %v", err))
	}

	names := make([]string, 0, len(cfg.RegexGuardrailPolicies))
	for name := range cfg.RegexGuardrailPolicies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := regexp.Compile(cfg.RegexGuardrailPolicies[name]); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("regex_guardrail_policies[%s]: %v", name, err))
		}
	}

	for action, phrases := range cfg.ProhibitedIndicators {
		if len(phrases) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("prohibited_indicators[%s] has no phrases", action))
		}
	}

	if !knownRedactionScopes[cfg.RedactionScope] {
		r.Errors = append(r.Errors, fmt.Sprintf("redaction_scope %q must be span or sentence", cfg.RedactionScope))
	}
	if !knownEscalationActions[cfg.EscalationAction] {
		r.Errors = append(r.Errors, fmt.Sprintf("escalation_action %q must be flag or halt", cfg.EscalationAction))
	}

	for i, g := range cfg.Guardrails {
		if g.Type == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("guardrails[%d]: type is required", i))
		} else if !knownGuardrailTypes[g.Type] {
			r.Warnings = append(r.Warnings, fmt.Sprintf("guardrails[%d]: unknown type %q", i, g.Type))
		}
	}

	seen := make(map[string]bool, len(cfg.Presets))
	for i, p := range cfg.Presets {
		if p.Name == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("presets[%d]: name is required", i))
			continue
		}
		if seen[p.Name] {
			r.Errors = append(r.Errors, fmt.Sprintf("presets[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
	}

	if t := cfg.Defaults.Temperature; t != nil && (*t < 0 || *t > 2) {
		r.Errors = append(r.Errors, fmt.Sprintf("defaults.temperature %v must be within [0, 2]", *t))
	}
	if m := cfg.Defaults.MaxTokens; m != nil && *m <= 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("defaults.max_tokens %d must be positive", *m))
	}

	if idx != nil {
		if cfg.DefaultScaffoldID == "" {
			r.Warnings = append(r.Warnings, "default_scaffold_id is not set; unmatched requests will fail")
		} else if _, ok := idx.Get(cfg.DefaultScaffoldID); !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("default_scaffold_id %q is not a registered scaffold", cfg.DefaultScaffoldID))
		}
	}
	return r
}
