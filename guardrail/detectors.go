package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/initializ/cip/textutil"
)

type phraseRule struct {
	label  string
	phrase string
	re     *textutil.Phrase
}

// LexicalDetector matches phrases as whole words, case-insensitively and
// across any whitespace run.
type LexicalDetector struct {
	name  string
	kind  string
	rules []phraseRule
	hint  int
}

// NewLexicalDetector builds a detector over labelled phrase groups. Blank
// phrases are ignored.
func NewLexicalDetector(name string, groups []IndicatorSet) *LexicalDetector {
	d := &LexicalDetector{name: name, kind: "prohibited pattern"}
	for _, g := range groups {
		for _, p := range g.Phrases {
			re := textutil.CompilePhrase(p)
			if re == nil {
				continue
			}
			d.rules = append(d.rules, phraseRule{label: g.Category, phrase: strings.TrimSpace(p), re: re})
			if n := len(p) * 2; n > d.hint {
				d.hint = n
			}
		}
	}
	return d
}

func (d *LexicalDetector) Name() string { return d.name }

// ContextHint is twice the longest phrase.
func (d *LexicalDetector) ContextHint() int { return d.hint }

// Len returns the number of active phrases.
func (d *LexicalDetector) Len() int { return len(d.rules) }

func (d *LexicalDetector) Detect(_ context.Context, text string) (Verdict, error) {
	var v Verdict
	for _, r := range d.rules {
		locs := r.re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		if !v.Fired {
			v.Fired = true
			v.Action = ActionRedact
			if r.label != "" {
				v.Reason = fmt.Sprintf("%s %q (%s)", d.kind, r.phrase, r.label)
			} else {
				v.Reason = fmt.Sprintf("%s %q", d.kind, r.phrase)
			}
		}
		for _, loc := range locs {
			v.Matches = append(v.Matches, Match{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]], Rule: r.label})
		}
	}
	sortMatches(v.Matches)
	return v, nil
}

type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

// PatternDetector matches named regular expressions.
type PatternDetector struct {
	name     string
	patterns []compiledPattern
}

// NewPatternDetector compiles rules case-insensitively. The first invalid
// expression aborts construction.
func NewPatternDetector(name string, rules []PatternRule) (*PatternDetector, error) {
	d := &PatternDetector{name: name}
	for _, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", r.Name, err)
		}
		d.patterns = append(d.patterns, compiledPattern{name: r.Name, re: re})
	}
	return d, nil
}

func (d *PatternDetector) Name() string { return d.name }

func (d *PatternDetector) Detect(_ context.Context, text string) (Verdict, error) {
	var v Verdict
	for _, p := range d.patterns {
		locs := p.re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		if !v.Fired {
			v.Fired = true
			v.Action = ActionRedact
			v.Reason = fmt.Sprintf("pattern %q matched", p.name)
		}
		for _, loc := range locs {
			if loc[0] == loc[1] {
				continue
			}
			v.Matches = append(v.Matches, Match{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]], Rule: p.name})
		}
	}
	if v.Fired && len(v.Matches) == 0 {
		// Only empty matches: nothing to redact.
		return Verdict{}, nil
	}
	sortMatches(v.Matches)
	return v, nil
}

// DefaultEscalationCoverage is the share of a trigger's content words that
// must appear for the trigger to count.
const DefaultEscalationCoverage = 0.6

type trigger struct {
	phrase string
	tokens []string
	re     *textutil.Phrase
}

// EscalationDetector reports escalation triggers. With ActionFlag it only
// records soft flags; with ActionHalt it demands a stop.
type EscalationDetector struct {
	action   Action
	coverage float64
	triggers []trigger
}

// NewEscalationDetector returns a detector for phrases. Any action other than
// ActionHalt is treated as ActionFlag.
func NewEscalationDetector(phrases []string, action Action) *EscalationDetector {
	if action != ActionHalt {
		action = ActionFlag
	}
	d := &EscalationDetector{action: action, coverage: DefaultEscalationCoverage}
	for _, p := range phrases {
		re := textutil.CompilePhrase(p)
		if re == nil {
			continue
		}
		toks := textutil.ContentTokens(p)
		if len(toks) == 0 {
			toks = textutil.Tokenize(p)
		}
		d.triggers = append(d.triggers, trigger{phrase: strings.TrimSpace(p), tokens: toks, re: re})
	}
	return d
}

func (d *EscalationDetector) Name() string { return "escalation" }

func (d *EscalationDetector) Detect(_ context.Context, text string) (Verdict, error) {
	var v Verdict
	if len(d.triggers) == 0 {
		return v, nil
	}
	set := textutil.TokenSet(text)
	for _, t := range d.triggers {
		loc := t.re.FindStringIndex(text)
		if loc == nil && textutil.Coverage(t.tokens, set) < d.coverage {
			continue
		}
		reason := fmt.Sprintf("escalation trigger %q", t.phrase)
		if d.action == ActionFlag {
			v.Flags = append(v.Flags, reason)
			continue
		}
		if !v.Fired {
			v.Fired = true
			v.Action = ActionHalt
			v.Reason = reason
		}
		if loc != nil {
			v.Matches = append(v.Matches, Match{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]], Rule: t.phrase})
		}
	}
	sortMatches(v.Matches)
	return v, nil
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Start < ms[j].Start })
}
