package engage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Policy governs how the bot treats replies to its own prior messages.
type Policy string

const (
	// PolicyIgnore never responds to replies to bot messages.
	PolicyIgnore Policy = "ignore"
	// PolicyMention responds to such replies only when mentioned.
	PolicyMention Policy = "mention"
	// PolicyWatch responds to every reply to a bot message.
	PolicyWatch Policy = "watch"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyIgnore:
		return PolicyIgnore, nil
	case PolicyMention, "":
		return PolicyMention, nil
	case PolicyWatch:
		return PolicyWatch, nil
	default:
		return "", fmt.Errorf("unknown reply behavior: %s (use ignore|mention|watch)", s)
	}
}

// Decision is the engine's verdict on one incoming message.
type Decision struct {
	Respond bool
	Context string // question text handed to answer generation
	ReplyTo string // event id the answer should reply to, when responding
	Reason  string
}

func ignoreDecision(reason string) Decision {
	return Decision{Reason: reason}
}

// Engine is the engagement decision state machine. It classifies an incoming
// message (own / reply-to-bot / reply-to-other / plain, mentioned or not)
// under the configured policy and assembles the context for answer
// generation. Context enrichment failures degrade to placeholders; they
// never veto a response the policy calls for.
type Engine struct {
	BotID      string
	Policy     Policy
	Matcher    *Matcher
	Resolver   *Resolver
	Registry   *SentRegistry
	DepthLimit int
	Logger     *slog.Logger
}

// Decide evaluates the policy table top to bottom; the first matching row
// wins.
func (e *Engine) Decide(ctx context.Context, msg Message) Decision {
	if msg.Sender == e.BotID {
		return ignoreDecision("own_message")
	}

	text, ok := msg.Text()
	if !ok {
		return ignoreDecision("non_text")
	}

	visible := VisibleContent(text.Body, text.FormattedBody)
	mentioned := e.Matcher.ContainsMention(visible)

	if msg.IsReply() {
		if e.Registry.Contains(msg.ReplyToID) {
			return e.decideReplyToBot(ctx, msg, visible, mentioned)
		}
		if !mentioned {
			return ignoreDecision("reply_to_other")
		}
		return Decision{
			Respond: true,
			Context: e.replyPairContext(ctx, msg, visible),
			ReplyTo: msg.ID,
			Reason:  "reply_mention",
		}
	}

	if !mentioned {
		return ignoreDecision("no_mention")
	}
	question := e.Matcher.Strip(visible)
	if question == "" {
		question = MentionOnlySentinel
	}
	return Decision{
		Respond: true,
		Context: question,
		ReplyTo: msg.ID,
		Reason:  "mention",
	}
}

// decideReplyToBot handles messages replying to something the bot said.
func (e *Engine) decideReplyToBot(ctx context.Context, msg Message, visible string, mentioned bool) Decision {
	switch e.Policy {
	case PolicyIgnore:
		return ignoreDecision("reply_to_bot_ignored")
	case PolicyMention:
		if !mentioned {
			return ignoreDecision("reply_to_bot_no_mention")
		}
		return Decision{
			Respond: true,
			Context: e.threadContext(ctx, msg, visible),
			ReplyTo: msg.ID,
			Reason:  "reply_to_bot_mention",
		}
	default: // PolicyWatch
		return Decision{
			Respond: true,
			Context: e.threadContext(ctx, msg, visible),
			ReplyTo: msg.ID,
			Reason:  "reply_to_bot_watch",
		}
	}
}

// threadContext reconstructs the conversation thread ending at msg and
// appends the current reply as its own line. When even the direct ancestor
// cannot be fetched it degrades to the two-part placeholder form.
func (e *Engine) threadContext(ctx context.Context, msg Message, visible string) string {
	current := e.Matcher.Strip(visible)
	if current == "" {
		current = MentionOnlySentinel
	}

	depth := e.DepthLimit
	if depth <= 0 {
		depth = 1
	}
	chain := e.Resolver.ResolveChain(ctx, msg, depth)
	if len(chain) < 2 {
		// The replied-to message could not be fetched; fall back to the
		// pair form with a placeholder so the model still sees the reply.
		return "Original message: " + fetchFailedText + "\n\nReply: " + current
	}
	thread := FormatThread(chain, e.BotID, e.Matcher)
	return thread + "\n" + currentReplyTag + " " + current
}

// replyPairContext builds the "original + reply" context for a mention that
// replies to a non-bot message.
func (e *Engine) replyPairContext(ctx context.Context, msg Message, visible string) string {
	current := e.Matcher.Strip(visible)
	if current == "" {
		current = MentionOnlySentinel
	}

	original := fetchFailedText
	ancestor, err := e.fetchAncestor(ctx, msg)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("ancestor_fetch_failed", "event_id", msg.ReplyToID, "error", err.Error())
		}
	} else {
		original = messageText(ancestor)
	}
	return "Original message: " + original + "\n\nReply: " + current
}

func (e *Engine) fetchAncestor(ctx context.Context, msg Message) (Message, error) {
	hopTimeout := e.Resolver.HopTimeout
	if hopTimeout <= 0 {
		hopTimeout = defaultHopTimeout
	}
	hopCtx, cancel := context.WithTimeout(ctx, hopTimeout)
	defer cancel()
	return e.Resolver.Fetcher.FetchEvent(hopCtx, msg.RoomID, msg.ReplyToID)
}
