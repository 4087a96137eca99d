package validate

import (
	"strings"
	"testing"

	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/types"
)

const validScaffold = `
id: budget_planning
version: "1.0"
domain: finance
display_name: Budget Planning
description: Build a monthly budget
applicability:
  intent_signals: [create a budget]
reasoning_framework:
  steps: [gather income, list expenses]
output_calibration:
  format: structured_narrative
guardrails:
  disclaimers: [Not professional advice.]
`

func TestValidateScaffoldDocument_Valid(t *testing.T) {
	errs, err := ValidateScaffoldDocument([]byte(validScaffold))
	if err != nil {
		t.Fatalf("ValidateScaffoldDocument error: %v", err)
	}
	if len(errs) > 0 {
		t.Errorf("expected no validation errors, got: %v", errs)
	}
}

func TestValidateScaffoldDocument_MissingRequired(t *testing.T) {
	errs, err := ValidateScaffoldDocument([]byte("id: x\n"))
	if err != nil {
		t.Fatalf("ValidateScaffoldDocument error: %v", err)
	}
	if len(errs) == 0 {
		t.Error("expected validation errors for missing required fields")
	}
}

func TestValidateScaffoldDocument_UnknownGuardrailField(t *testing.T) {
	doc := validScaffold + "  forbidden_topics: [x]\n"
	errs, err := ValidateScaffoldDocument([]byte(doc))
	if err != nil {
		t.Fatalf("ValidateScaffoldDocument error: %v", err)
	}
	if len(errs) == 0 {
		t.Error("expected an error for an unknown guardrails property")
	}
}

func TestValidateScaffoldDocument_BadYAML(t *testing.T) {
	if _, err := ValidateScaffoldDocument([]byte("id: [")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateDomainDocument(t *testing.T) {
	errs, err := ValidateDomainDocument([]byte("name: finance\nredaction_scope: paragraph\n"))
	if err != nil {
		t.Fatalf("ValidateDomainDocument error: %v", err)
	}
	if len(errs) == 0 {
		t.Error("expected an enum error for redaction_scope")
	}
}

func TestYAMLToJSON(t *testing.T) {
	got, err := YAMLToJSON([]byte("a: 1\nb: [x, y]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"a":1,"b":["x","y"]}` {
		t.Errorf("YAMLToJSON = %s", got)
	}
}

func TestValidateScaffold(t *testing.T) {
	s, err := scaffold.ParseScaffold([]byte(validScaffold))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ValidateScaffold("scaffolds/budget_planning.v1.yaml", s)
	if !r.IsValid() {
		t.Errorf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
}

func TestValidateScaffoldErrors(t *testing.T) {
	s := &scaffold.Scaffold{
		ID:      "x",
		Version: "v1",
		OutputCalibration: scaffold.OutputCalibration{
			MustInclude:  []string{"risk summary"},
			NeverInclude: []string{"Risk Summary"},
		},
		ReasoningFramework: scaffold.ReasoningFramework{Depth: "bottomless"},
	}
	r := ValidateScaffold("other.yaml", s)
	wantErrs := []string{
		`required field "domain"`,
		`version "v1"`,
		"applicability has no tools",
		"no guardrail disclaimers",
		"no steps",
		`reasoning depth "bottomless"`,
		"both required and forbidden",
	}
	joined := strings.Join(r.Errors, "\n")
	for _, want := range wantErrs {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error %q in:\n%s", want, joined)
		}
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "filename") {
		t.Errorf("expected filename warning, got %v", r.Warnings)
	}
}

func TestValidateDomainConfig(t *testing.T) {
	idx, err := scaffold.NewIndex([]*scaffold.Scaffold{{ID: "general"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := types.NewDomainConfig("finance")
	cfg.DefaultScaffoldID = "general"
	if r := ValidateDomainConfig(cfg, idx); !r.IsValid() {
		t.Fatalf("expected valid, got %v", r.Errors)
	}

	temp := 3.0
	cfg.DefaultScaffoldID = "missing"
	cfg.RegexGuardrailPolicies = map[string]string{"broken": "(unclosed"}
	cfg.RedactionScope = "paragraph"
	cfg.Guardrails = []types.GuardrailRef{{Type: "mystery"}}
	cfg.Presets = []types.PresetRef{{Name: "p"}, {Name: "p"}}
	cfg.Defaults.Temperature = &temp
	cfg.Selection.Weights.Applicability = 0.9

	r := ValidateDomainConfig(cfg, idx)
	joined := strings.Join(r.Errors, "\n")
	for _, want := range []string{"regex_guardrail_policies[broken]", "redaction_scope", "duplicate name", "defaults.temperature", "default_scaffold_id", "selection:"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing error %q in:\n%s", want, joined)
		}
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "unknown type") {
		t.Errorf("warnings = %v", r.Warnings)
	}
}

func TestValidationResultMerge(t *testing.T) {
	r := &ValidationResult{}
	r.Merge("a.yaml: ", &ValidationResult{Errors: []string{"bad"}, Warnings: []string{"meh"}})
	if r.Errors[0] != "a.yaml: bad" || r.Warnings[0] != "a.yaml: meh" {
		t.Errorf("Merge = %+v", r)
	}
}
