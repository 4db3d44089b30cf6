package markdown

import (
	"strconv"
	"strings"
)

// RenderText serializes a document as plain text: markup is dropped, list
// items are prefixed with "1." or "•", and blocks are separated by a blank line.
func RenderText(doc Document) string {
	parts := make([]string, 0, len(doc.Blocks))
	for _, blk := range doc.Blocks {
		switch v := blk.(type) {
		case Heading:
			parts = append(parts, plain(v.Text))
		case List:
			items := nonEmpty(v.Items)
			if len(items) == 0 {
				continue
			}
			lines := make([]string, len(items))
			for i, item := range items {
				marker := "•"
				if v.Ordered {
					marker = strconv.Itoa(i+1) + "."
				}
				lines[i] = marker + " " + plain(item)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		case Paragraph:
			lines := nonEmpty(v.Lines)
			if len(lines) == 0 {
				continue
			}
			texts := make([]string, len(lines))
			for i, l := range lines {
				texts[i] = plain(l)
			}
			parts = append(parts, strings.Join(texts, "\n"))
		case RawHTML:
			parts = append(parts, v.HTML)
		}
	}
	return strings.Join(parts, "\n\n")
}
