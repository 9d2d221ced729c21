package engage

import (
	"fmt"
	"strings"
)

const (
	// MentionOnlySentinel marks a message whose content was only a mention:
	// the bot was addressed with no further question. Valid input, not an
	// error.
	MentionOnlySentinel = "[mention only]"

	// EmptyThreadSentinel is the defensive fallback for an empty chain.
	EmptyThreadSentinel = "[empty message]"

	threadHeader    = "Conversation thread:"
	currentReplyTag = "Current reply:"
	fetchFailedText = "[Original message could not be retrieved]"
	roleLabelBot    = "Bot"
	roleLabelUser   = "User"
)

// FormatThread renders an oldest-first chain as one context block with
// per-message role labels. The first message, when from a user, has mentions
// stripped so the opening question reads clean; later user messages keep
// their text as written.
func FormatThread(chain []Message, botID string, matcher *Matcher) string {
	if len(chain) == 0 {
		return EmptyThreadSentinel
	}

	lines := make([]string, 0, len(chain))
	for i, msg := range chain {
		role := roleLabelUser
		if msg.Sender == botID {
			role = roleLabelBot
		}
		content := messageText(msg)
		if i == 0 && role == roleLabelUser && matcher != nil {
			content = matcher.Strip(content)
			if content == "" {
				content = MentionOnlySentinel
			}
		}
		lines = append(lines, role+": "+content)
	}

	if len(lines) == 1 {
		// Single message: no labels, just the (possibly stripped) content.
		_, content, _ := strings.Cut(lines[0], ": ")
		return content
	}
	return threadHeader + "\n" + strings.Join(lines, "\n")
}

// messageText returns the text of a message for thread context; non-text
// events become a typed placeholder so the thread still reads coherently.
func messageText(msg Message) string {
	switch c := msg.Content.(type) {
	case TextContent:
		return strings.TrimSpace(c.Body)
	case OtherContent:
		return fmt.Sprintf("[%s - content not accessible as text]", c.Kind)
	default:
		return EmptyThreadSentinel
	}
}
