// Package answer repairs the structural markdown mistakes that show up in
// model-generated answers before they are parsed.
package answer

import (
	"regexp"
	"strings"
)

// Rule is one named rewrite step of the normalizer.
// Apply must be total: it never fails and leaves unmatched text untouched.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Rules is the ordered rewrite chain used by Normalize.
// Later rules rely on the invariants established by earlier ones.
var Rules = []Rule{
	{Name: "heading-space", Apply: fixHeadingSpace},
	{Name: "heading-blank-line", Apply: blankLineAfterHeadings},
	{Name: "list-marker-space", Apply: fixListMarkerSpace},
	{Name: "double-dash", Apply: stripDoubleDash},
	{Name: "collapse-blank-lines", Apply: collapseBlankLines},
	{Name: "block-separation", Apply: separateBlocks},
}

// Normalize applies Rules in order to text and trims the result.
// The empty string maps to the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)

	for _, r := range Rules {
		s = r.Apply(s)
	}
	return strings.TrimSpace(s)
}

var (
	// midLineHashRun matches a ## to ###### run glued between two characters on one line.
	midLineHashRun = regexp.MustCompile(`([^\n#])#{2,6}([^\s#])`)

	// gluedHeading matches a line-start hash run directly followed by text.
	gluedHeading = regexp.MustCompile(`(?m)^([ \t]*#{1,6})([^\s#])`)

	// paddedHeading matches a line-start hash run followed by two or more blanks.
	paddedHeading = regexp.MustCompile(`(?m)^([ \t]*#{1,6})[ \t]{2,}(\S)`)

	indentedHeading = regexp.MustCompile(`(?m)^[ \t]+(#{1,6}[ \t]+\S)`)

	headingLine = regexp.MustCompile(`^#{1,6}[ \t]+\S`)
)

// fixHeadingSpace deletes hash runs that appear mid-line (model noise, never a
// heading), inserts exactly one space after a line-start hash run and pulls
// indented headings back to column zero.
func fixHeadingSpace(s string) string {
	for midLineHashRun.MatchString(s) {
		s = midLineHashRun.ReplaceAllString(s, "${1}${2}")
	}
	s = gluedHeading.ReplaceAllString(s, "${1} ${2}")
	s = paddedHeading.ReplaceAllString(s, "${1} ${2}")
	return indentedHeading.ReplaceAllString(s, "${1}")
}

// blankLineAfterHeadings makes every heading line followed by a blank line.
// Duplicated blank lines are left for collapseBlankLines.
func blankLineAfterHeadings(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)
	for i, line := range lines {
		out = append(out, line)
		if isHeading(line) && i+1 < len(lines) && !isBlank(lines[i+1]) {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

var (
	gluedOrdered = regexp.MustCompile(`(?m)^(\d+\.)([^\s\d])`)
	gluedBullet  = regexp.MustCompile(`(?m)^([-*])([^\s\-*].*)$`)
	paddedMarker = regexp.MustCompile(`(?m)^(\d+\.|[-*])[ \t]{2,}(\S)`)
)

// fixListMarkerSpace inserts one space after "1." or a "-"/"*" bullet glued to
// its text. A "*" whose line closes the star again is emphasis, not a bullet,
// and numbers such as "3.14" are left alone.
func fixListMarkerSpace(s string) string {
	s = gluedOrdered.ReplaceAllString(s, "${1} ${2}")
	s = gluedBullet.ReplaceAllStringFunc(s, func(line string) string {
		rest := line[1:]
		if line[0] == '*' && strings.Contains(rest, "*") {
			return line
		}
		return line[:1] + " " + rest
	})
	return paddedMarker.ReplaceAllString(s, "${1} ${2}")
}

var (
	orphanDashLine  = regexp.MustCompile(`(?m)^[ \t]*--[ \t]*$`)
	leadingDashItem = regexp.MustCompile(`(?m)^--[ \t]*([^\s-])`)
	inlineDash      = regexp.MustCompile(`(\S)[ \t]+--[ \t]+`)
)

// stripDoubleDash removes the stray "--" tokens models use as separators.
// Orphan lines are emptied rather than deleted so the paragraph break they
// stood for survives. Inline separators go first: removing one can leave a
// bare "--" behind.
func stripDoubleDash(s string) string {
	s = inlineDash.ReplaceAllString(s, "${1} ")
	s = orphanDashLine.ReplaceAllString(s, "")
	s = leadingDashItem.ReplaceAllString(s, "- ${1}")
	return strings.ReplaceAll(s, "\n--\n", "\n\n")
}

var (
	whitespaceOnlyLine = regexp.MustCompile(`(?m)^[ \t]+$`)
	excessNewlines     = regexp.MustCompile(`\n{3,}`)
)

// collapseBlankLines turns any run of blank lines into exactly one.
func collapseBlankLines(s string) string {
	s = whitespaceOnlyLine.ReplaceAllString(s, "")
	return excessNewlines.ReplaceAllString(s, "\n\n")
}

// separateBlocks inserts a blank line on any heading boundary the author left
// glued: heading→list, list→heading and paragraph→heading.
func separateBlocks(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)
	for i, line := range lines {
		if i > 0 && !isBlank(line) && !isBlank(lines[i-1]) && (isHeading(line) || isHeading(lines[i-1])) {
			out = append(out, "")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isHeading(line string) bool {
	return headingLine.MatchString(line)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
