package engage

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher detects and strips configured bot mentions. Matching is
// case-insensitive and whole-word: a mention must not match inside a longer
// token ("askaosus" never matches "askaosusbot").
type Matcher struct {
	mentions []string
	contains []*regexp.Regexp
	strips   []stripRule
}

type stripRule struct {
	re   *regexp.Regexp
	repl string
}

var (
	leadingJunkRe = regexp.MustCompile(`^[\s:,\-]+`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

// NewMatcher builds a Matcher from the configured mention strings.
// Marker-prefixed ("@askaosus") and bare ("askaosus") forms are independent
// entries; each entry also covers its bare form followed by trailing
// punctuation or end of string.
func NewMatcher(mentions []string) (*Matcher, error) {
	cleaned := make([]string, 0, len(mentions))
	for _, raw := range mentions {
		m := strings.TrimSpace(raw)
		if m == "" {
			return nil, fmt.Errorf("mention is required")
		}
		cleaned = append(cleaned, m)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("at least one mention is required")
	}

	matcher := &Matcher{mentions: cleaned}
	for _, m := range cleaned {
		matcher.contains = append(matcher.contains, regexp.MustCompile(wordPattern(m)))

		bare := strings.TrimPrefix(m, "@")
		quotedBare := regexp.QuoteMeta(strings.ToLower(bare))

		// Variants mirror the configured form: explicit @-handle, the form
		// as configured, bare form before trailing punctuation, bare form at
		// end of string. Punctuation is kept so that a leading leftover can
		// be trimmed afterwards.
		matcher.strips = append(matcher.strips,
			stripRule{re: regexp.MustCompile(`(?i)@` + quotedBare + `\b`)},
			stripRule{re: regexp.MustCompile(wordPattern(m))},
			stripRule{re: regexp.MustCompile(`(?i)\b` + quotedBare + `\b(\s*[:\-,])`), repl: "$1"},
			stripRule{re: regexp.MustCompile(`(?i)\b` + quotedBare + `(\s*)$`), repl: "$1"},
		)
	}
	return matcher, nil
}

// Mentions returns the configured mention strings.
func (m *Matcher) Mentions() []string {
	out := make([]string, len(m.mentions))
	copy(out, m.mentions)
	return out
}

// ContainsMention reports whether text contains any configured mention as a
// whole word. Callers pass visible content (quote-stripped) here.
func (m *Matcher) ContainsMention(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range m.contains {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Strip removes every occurrence of every configured mention variant and
// normalizes the leftover whitespace. The result may be empty; the caller
// decides what an empty residual means.
func (m *Matcher) Strip(text string) string {
	result := text
	for _, rule := range m.strips {
		result = rule.re.ReplaceAllString(result, rule.repl)
	}
	result = leadingJunkRe.ReplaceAllString(result, "")
	result = spaceRunRe.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// wordPattern builds a case-insensitive whole-word pattern for a mention.
// \b only works next to word characters, so boundaries are added per side.
func wordPattern(mention string) string {
	quoted := regexp.QuoteMeta(strings.ToLower(mention))
	pattern := `(?i)`
	if isWordByte(mention[0]) {
		pattern += `\b`
	}
	pattern += quoted
	if isWordByte(mention[len(mention)-1]) {
		pattern += `\b`
	}
	return pattern
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
