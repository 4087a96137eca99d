package guardrail

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/initializ/cip/textutil"
)

// maxSentenceReach bounds how far a sentence-scope redaction extends on
// either side of a match.
const maxSentenceReach = 500

const footerHeader = "\n\n---\nDisclaimers:\n"

type span struct{ start, end int }

// redact replaces spans of text with marker. Overlapping and touching spans
// are merged first so each region is replaced once.
func redact(text string, spans []span, marker string, scope Scope) string {
	if len(spans) == 0 {
		return text
	}
	if scope == ScopeSentence {
		for i := range spans {
			spans[i] = expandSentence(text, spans[i])
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	pos := 0
	for _, s := range merged {
		b.WriteString(text[pos:s.start])
		b.WriteString(marker)
		pos = s.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?' || c == '\n'
}

func expandSentence(text string, s span) span {
	start := s.start
	limit := s.start - maxSentenceReach
	if limit < 0 {
		limit = 0
	}
	for start > limit && !isTerminator(text[start-1]) {
		start--
	}
	start = textutil.RuneSafeStart(text, start)
	for start < s.start && (text[start] == ' ' || text[start] == '\t') {
		start++
	}

	end := s.end
	limit = s.end + maxSentenceReach
	if limit > len(text) {
		limit = len(text)
	}
	for end < limit && !isTerminator(text[end]) {
		end++
	}
	if end < len(text) && text[end] != '\n' && isTerminator(text[end]) {
		end++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return span{start, end}
}

// disclaimerFooter returns the footer listing the disclaimers missing from
// body, and the disclaimers it lists. Presence is checked ignoring case and
// whitespace, so a second pass over sanitized output adds nothing.
func disclaimerFooter(body string, disclaimers []string) (string, []string) {
	var missing []string
	seen := make(map[string]bool)
	for _, d := range disclaimers {
		d = strings.TrimSpace(d)
		key := textutil.Normalize(d)
		if d == "" || seen[key] || textutil.ContainsFold(body, d) {
			continue
		}
		seen[key] = true
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(footerHeader)
	for i, d := range missing {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(d)
	}
	return b.String(), missing
}
