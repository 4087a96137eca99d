package types

import (
	"strings"
	"testing"

	"github.com/initializ/cip/selection"
)

func TestParseDomainConfig(t *testing.T) {
	data := []byte(`
name: finance
display_name: Personal Finance
default_scaffold_id: general_advice
prohibited_indicators:
  predict_prices: ["the market will", "guaranteed to rise"]
regex_guardrail_policies:
  account_number: '\b\d{10,12}\b'
guardrails:
  - type: no_pii
  - type: content_filter
    config:
      blocked_words: [scam]
selection:
  min_confidence: 0.2
presets:
  - name: cautious
    policy:
      temperature: 0.2
defaults:
  temperature: 0.4
`)
	cfg, err := ParseDomainConfig(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "finance" || cfg.DefaultScaffoldID != "general_advice" {
		t.Errorf("identity fields = %q, %q", cfg.Name, cfg.DefaultScaffoldID)
	}
	if cfg.RedactionMessage != DefaultRedactionMessage {
		t.Errorf("RedactionMessage = %q", cfg.RedactionMessage)
	}
	if got := cfg.ProhibitedIndicators["predict_prices"]; len(got) != 2 {
		t.Errorf("indicators = %v", got)
	}
	if len(cfg.Guardrails) != 2 || cfg.Guardrails[1].Config["blocked_words"] == nil {
		t.Errorf("guardrails = %+v", cfg.Guardrails)
	}
	if cfg.Selection.MinConfidence != 0.2 {
		t.Errorf("MinConfidence = %v", cfg.Selection.MinConfidence)
	}
	if cfg.Selection.Weights != selection.Uniform(0.25) {
		t.Errorf("absent weights should keep defaults, got %+v", cfg.Selection.Weights)
	}
	if err := cfg.Selection.Validate(); err != nil {
		t.Errorf("parsed params should validate: %v", err)
	}
	if cfg.Defaults.Temperature == nil || *cfg.Defaults.Temperature != 0.4 {
		t.Errorf("Defaults.Temperature = %v", cfg.Defaults.Temperature)
	}
	if len(cfg.Presets) != 1 || cfg.Presets[0].Policy["temperature"] != 0.2 {
		t.Errorf("presets = %+v", cfg.Presets)
	}
}

func TestParseDomainConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing name", "display_name: x\n", "name is required"},
		{"guardrail type", "name: d\nguardrails:\n  - config: {}\n", "type is required"},
		{"preset name", "name: d\npresets:\n  - description: x\n", "name is required"},
		{"bad yaml", "name: [unterminated\n", "parsing domain config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDomainConfig([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
