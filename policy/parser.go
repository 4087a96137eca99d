package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxConstraintLength bounds constraint text; longer input is malformed.
const MaxConstraintLength = 4096

var clauseSplit = regexp.MustCompile(`[,;]\s*`)

// Clause is one recognized constraint clause.
type Clause struct {
	Raw  string `json:"raw"`
	Rule string `json:"rule"`
}

// Resolution is a resolved policy plus everything that could not be used.
type Resolution struct {
	Policy RunPolicy `json:"policy"`
	Parsed []Clause  `json:"parsed,omitempty"`
	// Unrecognized holds clauses no rule matched, or whose value was out of
	// range. Nothing is dropped silently.
	Unrecognized []string `json:"unrecognized,omitempty"`
	// Malformed is set when the text could not be parsed at all; Policy is
	// then empty and Unrecognized holds the whole text.
	Malformed bool `json:"malformed,omitempty"`
}

type clauseRule struct {
	name  string
	re    *regexp.Regexp
	apply func(m []string, p *ConstraintParser) (RunPolicy, error)
}

func rule(name, expr string, apply func(m []string, p *ConstraintParser) (RunPolicy, error)) clauseRule {
	return clauseRule{name: name, re: regexp.MustCompile(`(?i)` + expr), apply: apply}
}

func constant(p RunPolicy) func([]string, *ConstraintParser) (RunPolicy, error) {
	return func([]string, *ConstraintParser) (RunPolicy, error) { return p, nil }
}

// clauseRules are tried in order; the first match decides the clause.
var clauseRules = []clauseRule{
	rule("must_include", `\bmust\s+include\s+(.+)`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{ExtraMustInclude: []string{strings.TrimSpace(m[1])}}, nil
	}),
	rule("never_include", `\bnever\s+include\s+(.+)`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{ExtraNeverInclude: []string{strings.TrimSpace(m[1])}}, nil
	}),
	rule("creative_temp", `\bmore\s+creative\b`, constant(RunPolicy{Temperature: Float(0.8)})),
	rule("precise_temp", `\bmore\s+precise\b`, constant(RunPolicy{Temperature: Float(0.1)})),
	rule("aggressive_temp", `\bmore\s+aggressive\b`, constant(RunPolicy{Temperature: Float(0.5)})),
	rule("explicit_temp", `\btemperature\s*(?:[:=]\s*|of\s+|to\s+)?(\d+(?:\.\d+)?)\b`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return RunPolicy{}, err
		}
		p := RunPolicy{Temperature: Float(v)}
		return p, p.Validate()
	}),
	rule("max_tokens", `\bmax(?:imum)?\s+(\d+)\s+tokens?\b`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return RunPolicy{}, err
		}
		p := RunPolicy{MaxTokens: Int(v)}
		return p, p.Validate()
	}),
	rule("under_n_words", `\bunder\s+(\d+)\s+words?\b`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return RunPolicy{}, fmt.Errorf("%w: word limit %q", ErrInvalidPolicy, m[1])
		}
		return RunPolicy{MaxLengthGuidance: String(fmt.Sprintf("under %d words", v))}, nil
	}),
	rule("brief", `\b(?:keep\s+it\s+brief|be\s+brief|be\s+concise)\b`, constant(RunPolicy{MaxLengthGuidance: String("concise, under 200 words")})),
	rule("no_length_limit", `\bno\s+length\s+(?:limit|constraint)s?\b`, constant(RunPolicy{MaxLengthGuidance: String("no length constraint")})),
	rule("bullet_format", `\bbullet\s*points?\b`, constant(RunPolicy{OutputFormat: String("bullet_points")})),
	rule("narrative_format", `\bstructured\s+narrative\b`, constant(RunPolicy{OutputFormat: String("structured_narrative")})),
	rule("explicit_format", `\bformat[:\s]+([a-z][a-z_]*)\b`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{OutputFormat: String(strings.ToLower(m[1]))}, nil
	}),
	rule("skip_disclaimers", `\b(?:skip|no|drop|without)\s+disclaimers?\b`, constant(RunPolicy{SkipDisclaimers: Bool(true)})),
	rule("keep_disclaimers", `\b(?:keep|include|with)\s+disclaimers?\b`, constant(RunPolicy{SkipDisclaimers: Bool(false)})),
	rule("skip_prohibited", `\b(?:skip|no|drop|ignore)\s+prohibited\s+actions?\b`, constant(RunPolicy{RemoveProhibitedActions: []string{Wildcard}})),
	rule("allow_action", `\ballow\s+(.+)`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{RemoveProhibitedActions: []string{strings.TrimSpace(m[1])}}, nil
	}),
	rule("prohibit_action", `\b(?:prohibit|forbid)\s+(.+)`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{ExtraProhibitedActions: []string{strings.TrimSpace(m[1])}}, nil
	}),
	rule("compact_mode", `\b(?:compact\s+mode|use\s+compact|compact)\b`, constant(RunPolicy{Compact: Bool(true)})),
	rule("tone_variant", `\btone[:\s]+(\w+)`, func(m []string, _ *ConstraintParser) (RunPolicy, error) {
		return RunPolicy{ToneVariant: String(strings.ToLower(m[1]))}, nil
	}),
	rule("preset_ref", `\bpreset[:\s]+(\w+)`, func(m []string, p *ConstraintParser) (RunPolicy, error) {
		if p.presets == nil {
			return RunPolicy{}, fmt.Errorf("%w: %q", ErrUnknownPreset, m[1])
		}
		return p.presets.Policy(m[1])
	}),
}

// ConstraintParser turns comma- or semicolon-separated plain-English
// clauses into a RunPolicy.
type ConstraintParser struct {
	presets *PresetRegistry
}

// NewConstraintParser returns a parser resolving preset references against
// presets, which may be nil.
func NewConstraintParser(presets *PresetRegistry) *ConstraintParser {
	return &ConstraintParser{presets: presets}
}

// Parse never fails. Clauses are matched case-insensitively and applied in
// order, so a later clause overrides an earlier one for the same scalar.
func (c *ConstraintParser) Parse(text string) Resolution {
	if strings.TrimSpace(text) == "" {
		return Resolution{}
	}
	if malformed(text) {
		return Resolution{Unrecognized: []string{text}, Malformed: true}
	}

	var res Resolution
	var rules []string
	for _, clause := range clauseSplit.Split(strings.TrimSpace(text), -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		pol, name, ok := c.parseClause(clause)
		if !ok {
			res.Unrecognized = append(res.Unrecognized, clause)
			continue
		}
		pol.Source = ""
		res.Policy = res.Policy.Merge(pol)
		res.Parsed = append(res.Parsed, Clause{Raw: clause, Rule: name})
		rules = append(rules, name)
	}
	if len(rules) > 0 {
		res.Policy.Source = "constraint:" + strings.Join(rules, "+")
	}
	return res
}

func (c *ConstraintParser) parseClause(clause string) (RunPolicy, string, bool) {
	for _, r := range clauseRules {
		m := r.re.FindStringSubmatch(clause)
		if m == nil {
			continue
		}
		pol, err := r.apply(m, c)
		if err != nil {
			return RunPolicy{}, "", false
		}
		return pol, r.name, true
	}
	return RunPolicy{}, "", false
}

func malformed(text string) bool {
	if len(text) > MaxConstraintLength || !utf8.ValidString(text) {
		return true
	}
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
