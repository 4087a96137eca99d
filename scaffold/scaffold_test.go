package scaffold

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
id: risk_assessment
version: "1.0"
domain: finance
display_name: Risk Assessment
description: Evaluate portfolio risk and exposure
applicability:
  tools: [assess_risk]
  keywords: [risk, exposure]
  intent_signals: [how risky is]
framing:
  role: Risk analyst
  tone: measured
  tone_variants:
    friendly: warm and plain
reasoning_framework:
  steps: [identify, quantify, mitigate]
output_calibration:
  format_options: [structured_narrative, bullet_points]
guardrails:
  disclaimers: [This is not financial advice.]
tags: [finance, risk]
`

func TestParseScaffold(t *testing.T) {
	s, err := ParseScaffold([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "risk_assessment" {
		t.Errorf("ID = %q", s.ID)
	}
	if s.OutputCalibration.Format != DefaultFormat {
		t.Errorf("Format = %q, want default", s.OutputCalibration.Format)
	}
	if !s.SupportsFormat("bullet_points") || s.SupportsFormat("table") {
		t.Error("SupportsFormat mismatch")
	}
	if v, ok := s.ToneVariant("friendly"); !ok || v != "warm and plain" {
		t.Errorf("ToneVariant = %q, %v", v, ok)
	}
	if got := s.DepthLevel(); got != 0.5 {
		t.Errorf("DepthLevel = %v, want 0.5", got)
	}
}

func TestParseScaffoldDefaultsFormatOptions(t *testing.T) {
	s, err := ParseScaffold([]byte("id: x\noutput_calibration:\n  format: table\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.OutputCalibration.FormatOptions) != 1 || s.OutputCalibration.FormatOptions[0] != "table" {
		t.Errorf("FormatOptions = %v", s.OutputCalibration.FormatOptions)
	}
}

func TestParseScaffoldMissingID(t *testing.T) {
	_, err := ParseScaffold([]byte("version: '1.0'\n"))
	if err == nil || !strings.Contains(err.Error(), "id is required") {
		t.Fatalf("expected id error, got %v", err)
	}
}

func TestDepthLevelDeclared(t *testing.T) {
	s := &Scaffold{ReasoningFramework: ReasoningFramework{Depth: DepthDeep, Steps: []string{"one"}}}
	if s.DepthLevel() != 1 {
		t.Errorf("declared depth should win")
	}
}

func TestIndex(t *testing.T) {
	a := &Scaffold{ID: "a", Applicability: Applicability{Tools: []string{"x", "shared"}}, Tags: []string{"t1"}}
	b := &Scaffold{ID: "b", Applicability: Applicability{Tools: []string{"y", "shared"}}, Tags: []string{"t1", "t2"}}
	idx, err := NewIndex([]*Scaffold{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := idx.Get("b"); !ok || got != b {
		t.Error("Get(b) failed")
	}
	if got := idx.ByTool("x"); len(got) != 1 || got[0] != a {
		t.Errorf("ByTool(x) = %v", got)
	}
	if got := idx.ByTool("shared"); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("ByTool(shared) should keep declaration order")
	}
	if got := idx.ByTag("t2"); len(got) != 1 || got[0] != b {
		t.Errorf("ByTag(t2) = %v", got)
	}
	if idx.Position("b") != 1 || idx.Position("zz") != -1 {
		t.Error("Position mismatch")
	}
	if strings.Join(idx.Tags(), ",") != "t1,t2" {
		t.Errorf("Tags = %v", idx.Tags())
	}
}

func TestIndexRejectsDuplicates(t *testing.T) {
	_, err := NewIndex([]*Scaffold{{ID: "a"}, {ID: "a"}})
	if err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "id: beta\n")
	writeFile(t, filepath.Join(dir, "nested", "a.yml"), "id: alpha\n")
	writeFile(t, filepath.Join(dir, "_draft.yaml"), "id: draft\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	docs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Scaffold.ID != "beta" || docs[1].Scaffold.ID != "alpha" {
		t.Errorf("order = %s, %s", docs[0].Scaffold.ID, docs[1].Scaffold.ID)
	}
}

func TestLoadDirDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.yaml"), "id: same\n")
	writeFile(t, filepath.Join(dir, "two.yaml"), "id: same\n")
	_, err := LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "already defined in") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
