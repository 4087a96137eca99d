package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/initializ/cip/scaffold"
)

var (
	versionPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
	knownDepths    = map[string]bool{
		"":                     true,
		scaffold.DepthShallow:  true,
		scaffold.DepthModerate: true,
		scaffold.DepthDeep:     true,
	}
)

// ValidationResult holds errors and warnings from validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Merge appends the errors and warnings of other, prefixed with prefix.
func (r *ValidationResult) Merge(prefix string, other *ValidationResult) {
	for _, e := range other.Errors {
		r.Errors = append(r.Errors, prefix+e)
	}
	for _, w := range other.Warnings {
		r.Warnings = append(r.Warnings, prefix+w)
	}
}

// ValidateScaffold checks a parsed scaffold for semantic errors. path is the
// file it was loaded from and may be empty.
func ValidateScaffold(path string, s *scaffold.Scaffold) *ValidationResult {
	r := &ValidationResult{}

	required := []struct{ name, value string }{
		{"id", s.ID},
		{"version", s.Version},
		{"domain", s.Domain},
		{"display_name", s.DisplayName},
		{"description", s.Description},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("missing or empty required field %q", f.name))
		}
	}

	if s.Version != "" && !versionPattern.MatchString(s.Version) {
		r.Errors = append(r.Errors, fmt.Sprintf("version %q doesn't look like a version number", s.Version))
	}

	app := s.Applicability
	if len(app.Tools) == 0 && len(app.Keywords) == 0 && len(app.IntentSignals) == 0 {
		r.Errors = append(r.Errors, "applicability has no tools, keywords, or intent signals")
	}
	if len(s.Guardrails.Disclaimers) == 0 {
		r.Errors = append(r.Errors, "no guardrail disclaimers defined")
	}
	if len(s.ReasoningFramework.Steps) == 0 {
		r.Errors = append(r.Errors, "reasoning framework has no steps")
	}
	if !knownDepths[s.ReasoningFramework.Depth] {
		r.Errors = append(r.Errors, fmt.Sprintf("reasoning depth %q is not one of shallow, moderate, deep", s.ReasoningFramework.Depth))
	}

	oc := s.OutputCalibration
	if oc.Format != "" && len(oc.FormatOptions) > 0 && !s.SupportsFormat(oc.Format) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("format %q is not listed in format_options", oc.Format))
	}
	for _, phrase := range oc.NeverInclude {
		for _, must := range oc.MustInclude {
			if strings.EqualFold(strings.TrimSpace(phrase), strings.TrimSpace(must)) {
				r.Errors = append(r.Errors, fmt.Sprintf("%q is both required and forbidden", phrase))
			}
		}
	}
	for name, text := range s.Framing.ToneVariants {
		if strings.TrimSpace(text) == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf("tone variant %q is empty", name))
		}
	}

	if path != "" && s.ID != "" {
		name := filepath.Base(path)
		if name != s.ID+".yaml" && name != s.ID+".yml" && !strings.HasPrefix(name, s.ID+".") {
			r.Warnings = append(r.Warnings, fmt.Sprintf("filename %q should match scaffold id %q (expected %q)", name, s.ID, s.ID+".*.yaml"))
		}
	}
	return r
}
