package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/selection"
)

const (
	fixtureDomain    = "../testdata/finance/domain.yaml"
	fixtureScaffolds = "../testdata/finance/scaffolds"
)

// execute runs a fresh root command and returns what it wrote.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func fixtureArgs(args ...string) []string {
	return append(args, "--domain", fixtureDomain, "--scaffolds", fixtureScaffolds)
}

func TestValidate_Fixture(t *testing.T) {
	out, stderr, err := execute(t, "", fixtureArgs("validate", "--strict")...)
	if err != nil {
		t.Fatalf("validate error: %v\n%s", err, stderr)
	}
	if !strings.Contains(out, "Validation passed: 3 scaffold(s).") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestValidate_StrictWarnings(t *testing.T) {
	dir := t.TempDir()
	writeScaffold(t, dir, "notes.yaml", `
id: notes
version: "1"
domain: finance
display_name: Notes
description: Take notes
applicability:
  keywords: [notes]
reasoning_framework:
  depth: shallow
  steps: [summarize]
output_calibration:
  format: prose
  format_options: [bullet_points]
guardrails:
  disclaimers: ["Notes may be incomplete."]
`)

	_, stderr, err := execute(t, "", "validate", "--scaffolds", dir)
	if err != nil {
		t.Fatalf("non-strict validate should pass: %v", err)
	}
	if !strings.Contains(stderr, "WARNING: ") {
		t.Errorf("expected WARNING lines, got %q", stderr)
	}

	_, _, err = execute(t, "", "validate", "--strict", "--scaffolds", dir)
	if err == nil || !strings.Contains(err.Error(), "strict") {
		t.Fatalf("expected strict failure, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()
	writeScaffold(t, dir, "a.yaml", "id: a\nversion: \"1\"\ndomain: d\ndisplay_name: A\ndescription: first\n")
	writeScaffold(t, dir, "b.yaml", "id: a\nversion: \"1\"\ndomain: d\ndisplay_name: B\ndescription: second\n")

	_, stderr, err := execute(t, "", "validate", "--scaffolds", dir)
	if err == nil {
		t.Fatal("expected duplicate ids to fail validation")
	}
	if !strings.Contains(stderr, "ERROR: ") || !strings.Contains(stderr, "duplicate scaffold id") {
		t.Errorf("expected ERROR line naming the duplicate, got %q", stderr)
	}
}

func writeScaffold(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestSelect_JSON(t *testing.T) {
	out, stderr, err := execute(t, "", fixtureArgs("select", "--json", "--policy", "skip disclaimers", "can you review my portfolio diversification")...)
	if err != nil {
		t.Fatalf("select error: %v\n%s", err, stderr)
	}
	var got struct {
		Selection struct {
			ScaffoldID string `json:"scaffold_id"`
			Mode       string `json:"mode"`
		} `json:"selection"`
		Effective struct {
			Disclaimers []string `json:"disclaimers"`
		} `json:"effective"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Selection.ScaffoldID != "portfolio_review" || got.Selection.Mode != "scored" {
		t.Errorf("got %+v", got.Selection)
	}
	if len(got.Effective.Disclaimers) != 0 {
		t.Errorf("disclaimers should be skipped, got %v", got.Effective.Disclaimers)
	}
}

func TestSelect_Plain(t *testing.T) {
	out, _, err := execute(t, "", fixtureArgs("select", "--tool", "get_transactions", "--explain")...)
	if err != nil {
		t.Fatalf("select error: %v", err)
	}
	for _, want := range []string{"budget_planning", "tool_match", "scores", "> budget_planning"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, _, err = execute(t, "", fixtureArgs("select", "--id", "missing")...)
	if err == nil {
		t.Fatal("expected unknown scaffold id to fail")
	}
}

func TestPolicy(t *testing.T) {
	out, _, err := execute(t, "", fixtureArgs("policy", "--json", "be more creative, skip disclaimers")...)
	if err != nil {
		t.Fatalf("policy error: %v", err)
	}
	var got struct {
		Policy struct {
			Temperature     float64 `json:"temperature"`
			SkipDisclaimers bool    `json:"skip_disclaimers"`
		} `json:"policy"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Policy.Temperature != 0.8 || !got.Policy.SkipDisclaimers {
		t.Errorf("got %+v", got.Policy)
	}

	out, _, err = execute(t, "", fixtureArgs("policy", "do a barrel roll")...)
	if err != nil {
		t.Fatalf("policy error: %v", err)
	}
	if !strings.Contains(out, `WARNING: unrecognized clause "do a barrel roll"`) {
		t.Errorf("expected unrecognized clause warning:\n%s", out)
	}

	if _, _, err := execute(t, "", fixtureArgs("policy")...); err == nil {
		t.Fatal("expected an error without text or preset")
	}
}

func TestPresets(t *testing.T) {
	out, _, err := execute(t, "", fixtureArgs("presets")...)
	if err != nil {
		t.Fatalf("presets error: %v", err)
	}
	for _, want := range []string{"balanced", "creative", "precise", "aggressive", "cautious"} {
		if !strings.Contains(out, want) {
			t.Errorf("preset list missing %q:\n%s", want, out)
		}
	}
}

func TestHealth_JSON(t *testing.T) {
	out, stderr, err := execute(t, "", fixtureArgs("health", "--json")...)
	if err != nil {
		t.Fatalf("health error: %v\n%s", err, stderr)
	}
	var ph selection.PortfolioHealth
	if err := json.Unmarshal([]byte(out), &ph); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if len(ph.Scaffolds) != 3 {
		t.Fatalf("Scaffolds = %d, want 3", len(ph.Scaffolds))
	}
	found := false
	for _, ov := range ph.Overlaps {
		for _, tool := range ov.SharedTools {
			if tool == "get_portfolio" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("expected get_portfolio overlap, got %+v", ph.Overlaps)
	}
}

func TestHealth_Plain(t *testing.T) {
	out, _, err := execute(t, "", fixtureArgs("health", "--top", "2")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"portfolio_review", "budget_planning", "share tools get_portfolio", "3 scaffold(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "coupling "); got != 2 {
		t.Errorf("coupling lines = %d, want 2", got)
	}

	if _, _, err := execute(t, "", fixtureArgs("health", "--coherence-divisor", "0")...); err == nil {
		t.Error("expected a zero coherence divisor to be rejected")
	}
}

func TestGuard_Stdin(t *testing.T) {
	out, stderr, err := execute(t, "Honestly, you should buy index funds.", fixtureArgs("guard")...)
	if err != nil {
		t.Fatalf("guard error: %v", err)
	}
	if !strings.Contains(out, guardrail.DefaultRedactionMarker) || strings.Contains(out, "you should buy") {
		t.Errorf("expected redaction, got %q", out)
	}
	if !strings.Contains(out, "Disclaimers:") {
		t.Errorf("expected disclaimer footer, got %q", out)
	}
	if !strings.Contains(stderr, "redacted") {
		t.Errorf("expected verdict on stderr, got %q", stderr)
	}
}

func TestGuard_Stream(t *testing.T) {
	out, stderr, err := execute(t, "Hello there. You should buy this.", fixtureArgs("guard", "--stream", "--chunk-size", "4")...)
	if err != nil {
		t.Fatalf("guard error: %v", err)
	}
	if strings.Contains(out, "buy") {
		t.Errorf("prohibited text was forwarded: %q", out)
	}
	if !strings.HasPrefix(out, "Hello there.") {
		t.Errorf("clean prefix not forwarded: %q", out)
	}
	if !strings.Contains(stderr, "halted") {
		t.Errorf("expected halted verdict, got %q", stderr)
	}
}

func TestGuard_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resp.txt")
	if err := os.WriteFile(path, []byte("Diversification spreads risk. This is not investment advice."), 0644); err != nil {
		t.Fatal(err)
	}
	out, _, err := execute(t, "", fixtureArgs("guard", "--json", "--scaffold", "portfolio_review", path)...)
	if err != nil {
		t.Fatalf("guard error: %v", err)
	}
	var res guardrail.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.Fired || res.Footer != "" {
		t.Errorf("clean text with its disclaimer should pass unchanged, got %+v", res)
	}
}

func TestChunkText(t *testing.T) {
	got := chunkText("héllo wörld", 4)
	want := []string{"héll", "o wö", "rld"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("chunkText = %q, want %q", got, want)
	}
}
