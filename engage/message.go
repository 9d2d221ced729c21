package engage

// Message is the engine's view of one chat event. Transport-specific fields
// stay in the transport layer; the engine only needs identity, the reply
// relation and the content variant.
type Message struct {
	ID        string
	RoomID    string
	Sender    string
	Timestamp int64 // server timestamp, milliseconds
	ReplyToID string
	Content   Content
}

// Content is a tagged variant: TextContent for m.text-style events,
// OtherContent for everything else (images, files, stickers, ...).
type Content interface {
	isContent()
}

type TextContent struct {
	Body          string
	FormattedBody string
}

func (TextContent) isContent() {}

type OtherContent struct {
	Kind string
}

func (OtherContent) isContent() {}

func (m Message) IsReply() bool {
	return m.ReplyToID != ""
}

// Text returns the text content, if this is a text message.
func (m Message) Text() (TextContent, bool) {
	tc, ok := m.Content.(TextContent)
	return tc, ok
}
