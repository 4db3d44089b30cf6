package markdown

import (
	"regexp"
	"strings"
)

// Options tunes block classification.
type Options struct {
	// ExtraBullets are glyphs accepted as unordered list markers besides "-" and "*".
	ExtraBullets []string

	// AllowRawHTML emits a chunk consisting of one complete HTML element verbatim.
	AllowRawHTML bool
}

var (
	headingPattern   = regexp.MustCompile(`^(#{1,6})[ \t]+(\S.*?)[ \t]*$`)
	orderedPattern   = regexp.MustCompile(`^[ \t]*\d+\.[ \t]+(\S.*?)[ \t]*$`)
	leadStrong       = regexp.MustCompile(`^\*\*[^*\n]+\*\*`)
	rawHTMLPattern   = regexp.MustCompile(`^<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>.*</([a-zA-Z][a-zA-Z0-9]*)>$`)
	defaultUnordered = buildUnordered(nil)
)

func buildUnordered(extra []string) *regexp.Regexp {
	alts := []string{`[-*]`}
	for _, g := range extra {
		if g = strings.TrimSpace(g); g != "" {
			alts = append(alts, regexp.QuoteMeta(g))
		}
	}
	return regexp.MustCompile(`^[ \t]*(?:` + strings.Join(alts, "|") + `)[ \t]+(\S.*?)[ \t]*$`)
}

// Parser classifies normalized text into a Document.
type Parser struct {
	opts      Options
	unordered *regexp.Regexp
}

// NewParser creates a Parser for the given options.
func NewParser(opts Options) *Parser {
	p := &Parser{opts: opts, unordered: defaultUnordered}
	if len(opts.ExtraBullets) > 0 {
		p.unordered = buildUnordered(opts.ExtraBullets)
	}
	return p
}

var defaultParser = NewParser(Options{})

// Parse classifies text with default options.
func Parse(text string) Document {
	return defaultParser.Parse(text)
}

type lineKind int

const (
	lineText lineKind = iota
	lineHeading
	lineOrdered
	lineUnordered
	lineStrong
)

type line struct {
	kind  lineKind
	level int
	text  string // content with any marker stripped
	raw   string
}

// Parse splits text into blank-line separated chunks and classifies each.
// Content order is preserved exactly.
func (p *Parser) Parse(text string) Document {
	var doc Document
	for _, chunk := range chunks(text) {
		doc.Blocks = append(doc.Blocks, p.parseChunk(chunk)...)
	}
	return doc
}

func chunks(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out [][]string
	var cur []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (p *Parser) classify(raw string) line {
	if m := headingPattern.FindStringSubmatch(raw); m != nil {
		return line{kind: lineHeading, level: len(m[1]), text: m[2], raw: raw}
	}
	if m := orderedPattern.FindStringSubmatch(raw); m != nil {
		return line{kind: lineOrdered, text: m[1], raw: raw}
	}
	if m := p.unordered.FindStringSubmatch(raw); m != nil {
		return line{kind: lineUnordered, text: m[1], raw: raw}
	}
	trimmed := strings.TrimSpace(raw)
	if leadStrong.MatchString(trimmed) {
		return line{kind: lineStrong, text: trimmed, raw: raw}
	}
	return line{kind: lineText, text: trimmed, raw: raw}
}

// listKind reports which list kind the chunk qualifies as. Every line that is
// not a heading and does not lead with bold text must be an item of that kind;
// one stray line disqualifies the chunk. Ordered wins ties.
func listKind(lines []line) lineKind {
	candidates := 0
	ordered, unordered := true, true
	for _, l := range lines {
		if l.kind == lineHeading || l.kind == lineStrong {
			continue
		}
		candidates++
		ordered = ordered && l.kind == lineOrdered
		unordered = unordered && l.kind == lineUnordered
	}
	switch {
	case candidates == 0:
		return lineText
	case ordered:
		return lineOrdered
	case unordered:
		return lineUnordered
	}
	return lineText
}

func (p *Parser) parseChunk(rawLines []string) []Block {
	if p.opts.AllowRawHTML && len(rawLines) == 1 {
		trimmed := strings.TrimSpace(rawLines[0])
		if m := rawHTMLPattern.FindStringSubmatch(trimmed); m != nil && strings.EqualFold(m[1], m[2]) {
			return []Block{RawHTML{HTML: trimmed}}
		}
	}

	lines := make([]line, len(rawLines))
	for i, raw := range rawLines {
		lines[i] = p.classify(raw)
	}
	kind := listKind(lines)

	var blocks []Block
	var para *Paragraph
	var list *List
	flush := func() {
		if para != nil && len(para.Lines) > 0 {
			blocks = append(blocks, *para)
		}
		if list != nil && len(list.Items) > 0 {
			blocks = append(blocks, *list)
		}
		para, list = nil, nil
	}

	for _, l := range lines {
		switch {
		case l.kind == lineHeading:
			flush()
			blocks = append(blocks, Heading{Level: l.level, Text: parseInline(l.text)})
		case kind != lineText && l.kind == kind:
			if para != nil {
				flush()
			}
			if list == nil {
				list = &List{Ordered: kind == lineOrdered}
			}
			list.Items = append(list.Items, parseInline(l.text))
		default:
			if list != nil {
				flush()
			}
			if para == nil {
				para = &Paragraph{}
			}
			// Inside prose a list-looking line keeps its marker.
			text := l.text
			if l.kind == lineOrdered || l.kind == lineUnordered {
				text = strings.TrimSpace(l.raw)
			}
			para.Lines = append(para.Lines, parseInline(text))
		}
	}
	flush()
	return blocks
}
