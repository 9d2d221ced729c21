// Package markdown renders the small markdown subset answers use into
// Matrix-compatible HTML for formatted_body.
package markdown

import (
	"html"
	"regexp"
	"strings"
)

var (
	codeRe = regexp.MustCompile("`([^`\n]+)`")
	boldRe = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	linkRe = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
)

// ToMatrixHTML escapes text and converts inline code, bold, links, and
// newlines. Anything it does not recognize passes through escaped.
func ToMatrixHTML(text string) string {
	out := html.EscapeString(text)
	out = codeRe.ReplaceAllString(out, "<code>$1</code>")
	out = boldRe.ReplaceAllString(out, "<strong>$1</strong>")
	out = linkRe.ReplaceAllString(out, `<a href="$2">$1</a>`)
	return strings.ReplaceAll(out, "\n", "<br>")
}
