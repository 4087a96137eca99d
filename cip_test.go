package cip

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/llm/providers"
	"github.com/initializ/cip/policy"
	"github.com/initializ/cip/selection"
	"github.com/initializ/cip/telemetry"
)

// ─── Fixtures ────────────────────────────────────────────────────────

const fixtureDir = "testdata/finance"

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.DomainPath == "" {
		cfg.DomainPath = filepath.Join(fixtureDir, "domain.yaml")
	}
	if cfg.ScaffoldDir == "" {
		cfg.ScaffoldDir = filepath.Join(fixtureDir, "scaffolds")
	}
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e
}

// ─── Select ──────────────────────────────────────────────────────────

func TestSelectScored(t *testing.T) {
	sink := &telemetry.MemorySink{}
	e := testEngine(t, Config{Sink: sink})

	res, err := e.Select(SelectRequest{UserInput: "Can you review my portfolio diversification?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Selection.ScaffoldID != "portfolio_review" || res.Selection.Mode != selection.ModeScored {
		t.Errorf("got %s via %s", res.Selection.ScaffoldID, res.Selection.Mode)
	}
	if len(res.Selection.Scores) != 3 {
		t.Errorf("Scores should cover every scaffold, got %v", res.Selection.Scores)
	}
	if res.Effective.ScaffoldID != "portfolio_review" || len(res.Effective.Guardrails.Indicators) != 2 {
		t.Errorf("unexpected effective settings: %+v", res.Effective)
	}
	if got := len(sink.Named(telemetry.EventSelectionMade)); got != 1 {
		t.Errorf("selection events = %d, want 1", got)
	}
}

func TestSelectCascade(t *testing.T) {
	e := testEngine(t, Config{})

	res, err := e.Select(SelectRequest{ToolName: "get_transactions"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Selection.ScaffoldID != "budget_planning" || res.Selection.Mode != selection.ModeToolMatch {
		t.Errorf("got %s via %s", res.Selection.ScaffoldID, res.Selection.Mode)
	}

	res, err = e.Select(SelectRequest{ToolName: "get_portfolio", UserInput: "help me cut my spending on subscriptions"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Selection.ScaffoldID != "budget_planning" || res.Selection.Mode != selection.ModeScored {
		t.Errorf("got %s via %s", res.Selection.ScaffoldID, res.Selection.Mode)
	}
	if diff := cmp.Diff([]string{"budget_planning", "portfolio_review"}, res.Selection.ToolCandidates); diff != "" {
		t.Errorf("ToolCandidates (-want +got):\n%s", diff)
	}

	res, err = e.Select(SelectRequest{UserInput: "hello there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Selection.ScaffoldID != "general_guidance" || res.Selection.Mode != selection.ModeDefault {
		t.Errorf("got %s via %s", res.Selection.ScaffoldID, res.Selection.Mode)
	}

	if _, err := e.Select(SelectRequest{ScaffoldID: "nope"}); !errors.Is(err, selection.ErrUnknownScaffold) {
		t.Errorf("err = %v, want ErrUnknownScaffold", err)
	}
}

func TestSelectAppliesPolicy(t *testing.T) {
	sink := &telemetry.MemorySink{}
	e := testEngine(t, Config{Sink: sink})

	res, err := e.Select(SelectRequest{
		ScaffoldID: "portfolio_review",
		Policy:     policy.Expression{Text: "be more creative, skip disclaimers, tone casual"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eff := res.Effective
	if *eff.Temperature != 0.8 || len(eff.Disclaimers) != 0 || eff.Tone != "relaxed and conversational" {
		t.Errorf("unexpected effective settings: %+v", eff)
	}
	if len(res.Policy.Unrecognized) != 0 {
		t.Errorf("Unrecognized = %v", res.Policy.Unrecognized)
	}
	if got := len(sink.Named(telemetry.EventPolicyResolved)); got != 1 {
		t.Errorf("policy events = %d, want 1", got)
	}
}

func TestDomainPresets(t *testing.T) {
	e := testEngine(t, Config{})
	eff, err := e.Effective("general_guidance", policy.Expression{Preset: "Cautious"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *eff.Temperature != 0.2 || *eff.MaxTokens != 1024 {
		t.Errorf("temperature %v max tokens %v", *eff.Temperature, *eff.MaxTokens)
	}
	if diff := cmp.Diff([]string{"a reminder to consult a licensed advisor"}, eff.MustInclude); diff != "" {
		t.Errorf("MustInclude (-want +got):\n%s", diff)
	}
	if _, err := e.ResolvePolicy(policy.Expression{Preset: "unknown"}); !errors.Is(err, policy.ErrUnknownPreset) {
		t.Errorf("err = %v, want ErrUnknownPreset", err)
	}
}

// ─── Guardrails ──────────────────────────────────────────────────────

func TestEvaluateWithEffectiveSettings(t *testing.T) {
	e := testEngine(t, Config{})
	eff, err := e.Effective("portfolio_review", policy.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := e.Evaluate(context.Background(), "The market will rise. Write to me@example.com", eff.Guardrails)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := guardrail.DefaultRedactionMarker + " rise. Write to " + guardrail.DefaultRedactionMarker +
		"\n\n---\nDisclaimers:\n- This is not investment advice."
	if res.Sanitized != want {
		t.Errorf("Sanitized = %q\nwant %q", res.Sanitized, want)
	}
	if res.Detector != "prohibited_indicators" {
		t.Errorf("Detector = %q", res.Detector)
	}
}

func TestStreamThroughEngine(t *testing.T) {
	client := providers.NewScripted("scripted", "Diversification ", "matters. ", "You should buy", " more.")
	e := testEngine(t, Config{Client: client})
	eff, err := e.Effective("portfolio_review", policy.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out strings.Builder
	res, err := e.Stream(context.Background(), &llm.Request{}, eff, func(s string) error {
		out.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != guardrail.StateHalted {
		t.Fatalf("State = %v", res.State)
	}
	if out.String() != "Diversification matters. " {
		t.Errorf("forwarded %q", out.String())
	}

	c, err := e.Complete(context.Background(), &llm.Request{}, eff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(c.Content, "You should buy") {
		t.Errorf("prohibited phrase leaked: %q", c.Content)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────

func copyTree(t *testing.T, src, dst string) {
	t.Helper()
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	copyTree(t, fixtureDir, dir)
	sink := &telemetry.MemorySink{}
	e := testEngine(t, Config{
		DomainPath:  filepath.Join(dir, "domain.yaml"),
		ScaffoldDir: filepath.Join(dir, "scaffolds"),
		Sink:        sink,
	})

	extra := `id: tax_questions
version: "1.0"
domain: finance
display_name: Tax Questions
description: Answer questions about income tax
applicability:
  keywords: [tax, deduction]
reasoning_framework:
  steps: [identify the rule]
guardrails:
  disclaimers: [Consult a tax professional.]
`
	if err := os.WriteFile(filepath.Join(dir, "scaffolds", "tax_questions.yaml"), []byte(extra), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pinned := e.state.Load()
	if err := e.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Index().Len() != 4 {
		t.Fatalf("Index().Len() = %d, want 4", e.Index().Len())
	}
	// A reader that loaded the previous generation keeps seeing it whole.
	if got := pinned.selector.Snapshot().Index.Len(); got != 3 {
		t.Errorf("pinned generation index has %d scaffolds, want 3", got)
	}
	if _, err := pinned.selector.Select(selection.Request{ScaffoldID: "tax_questions"}); !errors.Is(err, selection.ErrUnknownScaffold) {
		t.Errorf("pinned generation resolved a scaffold from the next one: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "scaffolds", "broken.yaml"), []byte("id: ["), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Reload(context.Background()); err == nil {
		t.Fatal("expected reload to fail")
	}
	if e.Index().Len() != 4 {
		t.Error("a failed reload must keep the previous registry")
	}
	if got := len(sink.Named(telemetry.EventRegistryReloaded)); got != 2 {
		t.Errorf("reload events = %d, want 2", got)
	}
}
