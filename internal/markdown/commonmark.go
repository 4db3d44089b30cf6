package markdown

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var commonMark = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderCommonMark converts src with a strict CommonMark renderer (raw HTML is
// not passed through). Used to compare the tolerant pipeline against the
// reference interpretation of the same text.
func RenderCommonMark(src string) string {
	var buf bytes.Buffer
	if err := commonMark.Convert([]byte(src), &buf); err != nil {
		return template.HTMLEscapeString(src)
	}
	return buf.String()
}
