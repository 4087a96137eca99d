package selection

import (
	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/textutil"
)

type phraseMatcher struct {
	phrase string
	tokens []string
	re     *textutil.Phrase
}

// compiled holds the precomputed matchers for one scaffold.
type compiled struct {
	scaffold    *scaffold.Scaffold
	keywords    []phraseMatcher
	intents     []phraseMatcher
	triggers    []phraseMatcher
	tools       map[string]bool
	description []string
	depth       float64
	formats     map[string]bool
}

// PatternCache holds the compiled matchers for every scaffold of one Index.
// It is built once per registry load and never modified; a reload builds a
// new cache alongside the new Index.
type PatternCache struct {
	entries []*compiled
	byID    map[string]*compiled
}

// NewPatternCache compiles matchers for every scaffold in idx.
func NewPatternCache(idx *scaffold.Index) *PatternCache {
	all := idx.All()
	pc := &PatternCache{
		entries: make([]*compiled, 0, len(all)),
		byID:    make(map[string]*compiled, len(all)),
	}
	for _, s := range all {
		c := compile(s)
		pc.entries = append(pc.entries, c)
		pc.byID[s.ID] = c
	}
	return pc
}

// Len returns the number of cached scaffolds.
func (pc *PatternCache) Len() int { return len(pc.entries) }

func compile(s *scaffold.Scaffold) *compiled {
	c := &compiled{
		scaffold:    s,
		keywords:    compilePhrases(s.Applicability.Keywords),
		intents:     compilePhrases(s.Applicability.IntentSignals),
		triggers:    compilePhrases(s.Guardrails.EscalationTriggers),
		tools:       make(map[string]bool, len(s.Applicability.Tools)),
		description: textutil.ContentTokens(s.Description),
		depth:       s.DepthLevel(),
		formats:     make(map[string]bool, len(s.OutputCalibration.FormatOptions)),
	}
	for _, t := range s.Applicability.Tools {
		c.tools[t] = true
	}
	for _, f := range s.OutputCalibration.FormatOptions {
		c.formats[f] = true
	}
	return c
}

func compilePhrases(phrases []string) []phraseMatcher {
	out := make([]phraseMatcher, 0, len(phrases))
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		norm := textutil.Normalize(p)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, phraseMatcher{
			phrase: p,
			tokens: uniqueTokens(norm),
			re:     textutil.CompilePhrase(norm),
		})
	}
	return out
}

func uniqueTokens(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range textutil.Tokenize(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
