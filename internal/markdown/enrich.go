package markdown

import "github.com/restocorp/answerflow/internal/answer"

// Format selects an output target for an enriched answer.
type Format string

const (
	FormatHTML       Format = "html"
	FormatText       Format = "text"
	FormatCommonMark Format = "commonmark"
)

// Enricher runs raw model output through the normalizer and renderer.
type Enricher struct {
	parser *Parser
}

// NewEnricher creates an Enricher with the given parse options.
func NewEnricher(opts Options) *Enricher {
	return &Enricher{parser: NewParser(opts)}
}

// Document normalizes raw and parses it.
func (e *Enricher) Document(raw string) Document {
	return e.parser.Parse(answer.Normalize(raw))
}

// HTML normalizes and renders raw exactly once.
func (e *Enricher) HTML(raw string) string {
	return RenderHTML(e.Document(raw))
}

// Render produces raw in the requested format. Unknown formats fall back to HTML.
func (e *Enricher) Render(raw string, format Format) string {
	switch format {
	case FormatText:
		return RenderText(e.Document(raw))
	case FormatCommonMark:
		return RenderCommonMark(answer.Normalize(raw))
	default:
		return e.HTML(raw)
	}
}

var defaultEnricher = NewEnricher(Options{})

// Enrich is Render(answer.Normalize(raw)) with default options.
func Enrich(raw string) string {
	return defaultEnricher.HTML(raw)
}
