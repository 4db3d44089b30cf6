package markdown

import (
	"strconv"
	"strings"
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Render converts normalized text to HTML with default options.
// It must be applied once, to source text, never to its own output.
func Render(normalized string) string {
	return RenderHTML(Parse(normalized))
}

// RenderHTML serializes a document. Blocks are concatenated without
// separators; empty paragraphs and lists are never emitted.
func RenderHTML(doc Document) string {
	var b strings.Builder
	for _, blk := range doc.Blocks {
		writeBlockHTML(&b, blk)
	}
	return b.String()
}

func writeBlockHTML(b *strings.Builder, blk Block) {
	switch v := blk.(type) {
	case Heading:
		level := min(max(v.Level, 1), 6)
		tag := "h" + strconv.Itoa(level)
		b.WriteString("<" + tag + ">")
		writeInlineHTML(b, v.Text)
		b.WriteString("</" + tag + ">")
	case List:
		items := nonEmpty(v.Items)
		if len(items) == 0 {
			return
		}
		tag := "ul"
		if v.Ordered {
			tag = "ol"
		}
		b.WriteString("<" + tag + ">")
		for _, item := range items {
			b.WriteString("<li>")
			writeInlineHTML(b, item)
			b.WriteString("</li>")
		}
		b.WriteString("</" + tag + ">")
	case Paragraph:
		lines := nonEmpty(v.Lines)
		if len(lines) == 0 {
			return
		}
		b.WriteString("<p>")
		for i, l := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			writeInlineHTML(b, l)
		}
		b.WriteString("</p>")
	case RawHTML:
		b.WriteString(v.HTML)
	}
}

func writeInlineHTML(b *strings.Builder, spans []Inline) {
	for _, sp := range spans {
		text := htmlEscaper.Replace(sp.Text)
		switch sp.Kind {
		case InlineStrong:
			b.WriteString("<strong>" + text + "</strong>")
		case InlineEmphasis:
			b.WriteString("<em>" + text + "</em>")
		case InlineCode:
			b.WriteString("<code>" + text + "</code>")
		default:
			b.WriteString(text)
		}
	}
}

func nonEmpty(lines [][]Inline) [][]Inline {
	out := lines[:0:0]
	for _, l := range lines {
		if strings.TrimSpace(plain(l)) != "" {
			out = append(out, l)
		}
	}
	return out
}
