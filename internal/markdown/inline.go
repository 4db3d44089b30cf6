package markdown

import "regexp"

// inlinePattern matches bold, italic and code spans. Alternation order gives
// bold precedence over italic at the same offset; no span crosses a newline.
var inlinePattern = regexp.MustCompile("\\*\\*([^*\\n]+)\\*\\*|\\*([^*\\n]+)\\*|`([^`\\n]+)`")

// parseInline splits a single line into styled spans, left to right.
func parseInline(s string) []Inline {
	if s == "" {
		return nil
	}
	matches := inlinePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return []Inline{{Kind: InlineText, Text: s}}
	}

	spans := make([]Inline, 0, 2*len(matches)+1)
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			spans = append(spans, Inline{Kind: InlineText, Text: s[pos:m[0]]})
		}
		switch {
		case m[2] >= 0:
			spans = append(spans, Inline{Kind: InlineStrong, Text: s[m[2]:m[3]]})
		case m[4] >= 0:
			spans = append(spans, Inline{Kind: InlineEmphasis, Text: s[m[4]:m[5]]})
		default:
			spans = append(spans, Inline{Kind: InlineCode, Text: s[m[6]:m[7]]})
		}
		pos = m[1]
	}
	if pos < len(s) {
		spans = append(spans, Inline{Kind: InlineText, Text: s[pos:]})
	}
	return spans
}

// plain concatenates span text without markup.
func plain(spans []Inline) string {
	n := 0
	for _, sp := range spans {
		n += len(sp.Text)
	}
	b := make([]byte, 0, n)
	for _, sp := range spans {
		b = append(b, sp.Text...)
	}
	return string(b)
}
