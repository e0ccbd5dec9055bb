package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skillswaphq/skillswap-realtime/internal/identity"
)

// nestedPayload covers the primary push shape:
// {conversationId, message: {text, from, timestamp}}.
// Sender and Content aliases have been observed from older server builds.
type nestedPayload struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text,omitempty"`
	Content   string `json:"content,omitempty"`
	From      string `json:"from,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// frameParser attempts to extract a PushMessage from one inbound frame.
// Parsers are tried in priority order; the first match wins.
type frameParser func(frame wireFrame) (PushMessage, bool)

var newMessageParsers = []frameParser{
	parseNestedMessage,
	parseFlattenedMessage,
	parseBareStringMessage,
}

func parseNestedMessage(frame wireFrame) (PushMessage, bool) {
	if len(frame.Message) == 0 {
		return PushMessage{}, false
	}
	var payload nestedPayload
	if err := json.Unmarshal(frame.Message, &payload); err != nil {
		return PushMessage{}, false
	}
	text := payload.Text
	if text == "" {
		text = payload.Content
	}
	from := payload.From
	if from == "" {
		from = payload.Sender
	}
	if text == "" || frame.ConversationID == "" {
		return PushMessage{}, false
	}
	return PushMessage{
		ConversationID: frame.ConversationID,
		MessageID:      payload.ID,
		From:           identity.Normalize(from),
		Text:           text,
		Timestamp:      payload.Timestamp,
	}, true
}

func parseFlattenedMessage(frame wireFrame) (PushMessage, bool) {
	if frame.Text == "" || frame.ConversationID == "" {
		return PushMessage{}, false
	}
	return PushMessage{
		ConversationID: frame.ConversationID,
		MessageID:      frame.ID,
		From:           identity.Normalize(frame.From),
		Text:           frame.Text,
		Timestamp:      frame.Timestamp,
	}, true
}

func parseBareStringMessage(frame wireFrame) (PushMessage, bool) {
	if len(frame.Message) == 0 || frame.ConversationID == "" {
		return PushMessage{}, false
	}
	var text string
	if err := json.Unmarshal(frame.Message, &text); err != nil {
		return PushMessage{}, false
	}
	if text == "" {
		return PushMessage{}, false
	}
	return PushMessage{
		ConversationID: frame.ConversationID,
		From:           identity.Normalize(frame.From),
		Text:           text,
		Timestamp:      frame.Timestamp,
	}, true
}

// normalizePush runs the parser chain over an inbound new-message frame.
// A frame matching no parser yields a generic placeholder message instead of
// being dropped.
func normalizePush(frame wireFrame, now time.Time) PushMessage {
	for _, parse := range newMessageParsers {
		if message, ok := parse(frame); ok {
			if message.Timestamp == "" {
				message.Timestamp = now.UTC().Format(time.RFC3339)
			}
			return message
		}
	}

	conversationID := frame.ConversationID
	if conversationID == "" {
		conversationID = fmt.Sprintf("unknown-%d", now.UnixMilli())
	}
	return PushMessage{
		ConversationID: conversationID,
		From:           identity.Normalize(frame.From),
		Text:           "You received a message",
		Timestamp:      now.UTC().Format(time.RFC3339),
		Generic:        true,
	}
}
