// Package textutil provides the text normalization and phrase-matching helpers
// shared by the matcher, the constraint parser and the guardrail detectors.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	separatorRun        = regexp.MustCompile(`[\s-]+`)
	nonSlugChar         = regexp.MustCompile(`[^a-z0-9_]`)
	multipleUnderscores = regexp.MustCompile(`_{2,}`)
	tokenPattern        = regexp.MustCompile(`[a-z0-9']+`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// stopwords are ignored when comparing free text against scaffold descriptions.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "me": true, "my": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "what": true, "with": true,
	"you": true, "your": true, "do": true, "does": true, "can": true, "should": true,
}

// Slugify converts a human-readable name into an identifier-safe slug.
// It lowercases, turns spaces and hyphens into underscores, strips anything
// outside [a-z0-9_], collapses repeated underscores and trims them from both
// ends. The result matches a single `\w+` token.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = separatorRun.ReplaceAllString(s, "_")
	s = nonSlugChar.ReplaceAllString(s, "")
	s = multipleUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Normalize lowercases s, collapses whitespace runs to a single space and trims.
func Normalize(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToLower(s), " "))
}

// Tokenize splits s into lowercase word tokens.
func Tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	toks := Tokenize(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// ContentTokens returns the distinct non-stopword tokens of s in first-seen order.
func ContentTokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokenize(s) {
		if stopwords[t] || len(t) < 3 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Coverage reports the fraction of tokens present in set. An empty token
// list has zero coverage.
func Coverage(tokens []string, set map[string]struct{}) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// Phrase matches a phrase as whole words, case-insensitively and across any
// whitespace run. Word edges are judged on Unicode letters and digits, so
// phrases such as "rendement élevé" match where `\b` would not.
type Phrase struct {
	re        *regexp.Regexp
	wordStart bool
	wordEnd   bool
}

// CompilePhrase compiles phrase into a Phrase. It returns nil for a blank
// phrase.
func CompilePhrase(phrase string) *Phrase {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	first, _ := utf8.DecodeRuneInString(words[0])
	last, _ := utf8.DecodeLastRuneInString(words[len(words)-1])
	return &Phrase{
		re:        regexp.MustCompile(`(?i)` + strings.Join(quoted, `\s+`)),
		wordStart: IsWordRune(first),
		wordEnd:   IsWordRune(last),
	}
}

func (p *Phrase) String() string { return p.re.String() }

// MatchString reports whether s contains the phrase.
func (p *Phrase) MatchString(s string) bool {
	return p.FindStringIndex(s) != nil
}

// FindStringIndex returns the span of the leftmost match, or nil.
func (p *Phrase) FindStringIndex(s string) []int {
	if locs := p.FindAllStringIndex(s, 1); len(locs) > 0 {
		return locs[0]
	}
	return nil
}

// FindAllStringIndex returns the spans of successive non-overlapping matches.
// n < 0 means all matches.
func (p *Phrase) FindAllStringIndex(s string, n int) [][]int {
	var out [][]int
	for pos := 0; pos < len(s) && (n < 0 || len(out) < n); {
		loc := p.re.FindStringIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if p.bounded(s, start, end) {
			out = append(out, []int{start, end})
			pos = max(end, start+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		pos = start + max(size, 1)
	}
	return out
}

func (p *Phrase) bounded(s string, start, end int) bool {
	if p.wordStart && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); IsWordRune(r) {
			return false
		}
	}
	if p.wordEnd && end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); IsWordRune(r) {
			return false
		}
	}
	return true
}

// ContainsFold reports whether needle occurs in haystack ignoring case and
// whitespace differences.
func ContainsFold(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return true
	}
	return strings.Contains(Normalize(haystack), n)
}

// RuneSafeStart moves i backwards until it sits on a rune boundary of s.
func RuneSafeStart(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// IsWordRune reports whether r is a letter, digit or underscore in any script.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
