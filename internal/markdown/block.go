// Package markdown parses normalized answer text into a small block AST and
// serializes it to HTML or plain text.
package markdown

// Block is one classified unit of a document.
// Implemented by Heading, List, Paragraph and RawHTML.
type Block interface {
	block()
}

// Heading is an h1-h6 line.
type Heading struct {
	Level int
	Text  []Inline
}

// List is a run of adjacent list items of the same kind.
type List struct {
	Ordered bool
	Items   [][]Inline
}

// Paragraph is one or more prose lines; lines render separated by <br>.
type Paragraph struct {
	Lines [][]Inline
}

// RawHTML is passed through to HTML output untouched.
type RawHTML struct {
	HTML string
}

func (Heading) block()   {}
func (List) block()      {}
func (Paragraph) block() {}
func (RawHTML) block()   {}

// Document is the ordered block sequence of one answer.
type Document struct {
	Blocks []Block
}

// InlineKind tags an inline span.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineStrong
	InlineEmphasis
	InlineCode
)

// Inline is a span of text with at most one style; spans never nest.
type Inline struct {
	Kind InlineKind
	Text string
}
