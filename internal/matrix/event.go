package matrix

import (
	"encoding/json"

	"github.com/aosus/askaosus/engage"
)

// Event is a room timeline event as delivered by /sync or /rooms/.../event.
type Event struct {
	EventID   string          `json:"event_id"`
	RoomID    string          `json:"room_id,omitempty"`
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"origin_server_ts"`
	Content   json.RawMessage `json:"content"`
}

type messageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format"`
	FormattedBody string `json:"formatted_body"`
	RelatesTo     *struct {
		InReplyTo *struct {
			EventID string `json:"event_id"`
		} `json:"m.in_reply_to"`
	} `json:"m.relates_to"`
}

// AsMessage converts a timeline event into the engagement model. Room message
// events with msgtype m.text become text content; every other event keeps
// only its kind, so the decision engine can name what it cannot read.
func (e Event) AsMessage() engage.Message {
	msg := engage.Message{
		ID:        e.EventID,
		RoomID:    e.RoomID,
		Sender:    e.Sender,
		Timestamp: e.Timestamp,
	}

	if e.Type != "m.room.message" {
		msg.Content = engage.OtherContent{Kind: e.Type}
		return msg
	}

	var content messageContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		msg.Content = engage.OtherContent{Kind: e.Type}
		return msg
	}
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		msg.ReplyToID = content.RelatesTo.InReplyTo.EventID
	}
	if content.MsgType != "m.text" {
		kind := content.MsgType
		if kind == "" {
			kind = e.Type
		}
		msg.Content = engage.OtherContent{Kind: kind}
		return msg
	}

	text := engage.TextContent{Body: content.Body}
	if content.Format == "org.matrix.custom.html" {
		text.FormattedBody = content.FormattedBody
	}
	msg.Content = text
	return msg
}
