// Package guardrail evaluates generated text against pluggable detectors,
// redacts what they match and completes required disclaimers. It works on
// complete responses (Pipeline.Evaluate) and on live streams (Stream).
package guardrail

import (
	"context"
	"errors"
)

// DefaultRedactionMarker replaces redacted content when settings carry none.
const DefaultRedactionMarker = "[Removed: contains prohibited content]"

// DefaultStreamContext is the minimum number of trailing bytes from earlier
// chunks re-checked with each new chunk.
const DefaultStreamContext = 256

// ErrStreamClosed is returned when a chunk is fed to a halted or finalized stream.
var ErrStreamClosed = errors.New("stream is closed")

// Action says what a firing detector demands.
type Action string

const (
	// ActionRedact removes the matched spans.
	ActionRedact Action = "redact"
	// ActionHalt stops a stream without redacting.
	ActionHalt Action = "halt"
	// ActionFlag records an observation without enforcing anything.
	ActionFlag Action = "flag"
	// ActionDisclaimer marks an appended disclaimer.
	ActionDisclaimer Action = "disclaimer"
)

// Scope controls how much text a redaction replaces.
type Scope string

const (
	// ScopeSpan replaces exactly the matched span.
	ScopeSpan Scope = "span"
	// ScopeSentence replaces the sentence enclosing the match.
	ScopeSentence Scope = "sentence"
)

// Match is one matched span in the evaluated text, as byte offsets.
type Match struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Rule  string `json:"rule,omitempty"`
}

// Verdict is a single detector's answer for one text.
type Verdict struct {
	// Fired is true when the detector demands enforcement.
	Fired bool
	// Action is ActionRedact (the default) or ActionHalt.
	Action  Action
	Reason  string
	Matches []Match
	// Flags are soft observations that never halt or redact.
	Flags []string
}

// Detector is any independent, side-effect-free evaluator of text. The
// pipeline only ever calls Name and Detect.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) (Verdict, error)
}

// contextHinter is implemented by detectors that know how many trailing
// bytes a match can span.
type contextHinter interface {
	ContextHint() int
}

// IndicatorSet is a named group of prohibited phrases.
type IndicatorSet struct {
	Category string   `json:"category"`
	Phrases  []string `json:"phrases"`
}

// PatternRule is a named regular expression. Matching is case-insensitive.
type PatternRule struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// Spec enables a registered detector type with its config.
type Spec struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Settings parameterize a Pipeline. They are produced from the effective
// scaffold, domain and run policy.
type Settings struct {
	Disclaimers        []string       `json:"disclaimers,omitempty"`
	EscalationTriggers []string       `json:"escalation_triggers,omitempty"`
	EscalationAction   Action         `json:"escalation_action,omitempty"`
	Indicators         []IndicatorSet `json:"indicators,omitempty"`
	NeverInclude       []string       `json:"never_include,omitempty"`
	PatternRules       []PatternRule  `json:"pattern_rules,omitempty"`
	Builtins           []Spec         `json:"builtins,omitempty"`
	RedactionMarker    string         `json:"redaction_marker,omitempty"`
	RedactionScope     Scope          `json:"redaction_scope,omitempty"`
	// StreamContext overrides DefaultStreamContext when larger.
	StreamContext int `json:"stream_context,omitempty"`
}

func (s Settings) withDefaults() Settings {
	if s.RedactionMarker == "" {
		s.RedactionMarker = DefaultRedactionMarker
	}
	if s.RedactionScope == "" {
		s.RedactionScope = ScopeSpan
	}
	if s.EscalationAction == "" {
		s.EscalationAction = ActionFlag
	}
	return s
}

// Intervention records one thing the pipeline did or observed.
type Intervention struct {
	Detector string   `json:"detector"`
	Action   Action   `json:"action"`
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

// DetectorFailure records a detector that errored or panicked. Its result is
// treated as no match.
type DetectorFailure struct {
	Index    int    `json:"index"`
	Detector string `json:"detector"`
	Message  string `json:"error"`
	Err      error  `json:"-"`
}

func (f DetectorFailure) Error() string {
	return "detector " + f.Detector + ": " + f.Message
}

func (f DetectorFailure) Unwrap() error { return f.Err }

// Result is the verdict of one evaluation. For streams it also carries the
// terminal state.
type Result struct {
	// Fired is true when any detector demanded enforcement; Detector is the
	// lowest-registered one among them.
	Fired     bool    `json:"fired"`
	Detector  string  `json:"detector,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Evidence  []Match `json:"evidence,omitempty"`
	Sanitized string  `json:"sanitized"`
	// Footer is the disclaimer block appended to Sanitized, if any.
	Footer        string            `json:"footer,omitempty"`
	Interventions []Intervention    `json:"interventions,omitempty"`
	Failures      []DetectorFailure `json:"failures,omitempty"`

	StreamID   string `json:"stream_id,omitempty"`
	State      State  `json:"state,omitempty"`
	HaltReason string `json:"halt_reason,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	// Tail is the text a finalized stream still owes the caller: any held
	// back remainder plus the disclaimer footer.
	Tail string `json:"tail,omitempty"`
}

// Flags returns the soft observations recorded in r.
func (r *Result) Flags() []Intervention {
	var out []Intervention
	for _, iv := range r.Interventions {
		if iv.Action == ActionFlag {
			out = append(out, iv)
		}
	}
	return out
}
