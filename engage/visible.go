package engage

import (
	"strings"

	"golang.org/x/net/html"
)

// quoteMarker prefixes legacy quoted-reply lines in plain-text bodies.
const quoteMarker = "> "

// VisibleContent returns the text a reader actually sees in a message,
// excluding quoted/replied-to material. When a formatted rendering exists it
// wins, because rich clients structurally omit the quoted fallback there
// (reply-fallback blocks are dropped during tag stripping). Otherwise the
// plain body is filtered line by line for the legacy quote marker, which is
// best-effort only.
func VisibleContent(body, formattedBody string) string {
	if strings.TrimSpace(formattedBody) != "" {
		if text := strings.TrimSpace(stripMarkup(formattedBody)); text != "" {
			return text
		}
	}

	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), strings.TrimSpace(quoteMarker)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// stripMarkup removes tags from a formatted body and decodes entities,
// keeping line structure for <br> and block elements. Reply-fallback
// subtrees (<mx-reply>) are skipped entirely so quoted content never leaks
// into mention detection.
func stripMarkup(formatted string) string {
	node, err := html.Parse(strings.NewReader(formatted))
	if err != nil {
		return formatted
	}
	var b strings.Builder
	collectText(node, &b)
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "mx-reply", "script", "style":
			return
		case "br":
			b.WriteString("\n")
			return
		case "p", "div", "blockquote", "li", "pre":
			if b.Len() > 0 {
				b.WriteString("\n")
			}
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
