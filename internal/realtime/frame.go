package realtime

import "encoding/json"

// Wire-level event names exchanged with the socket endpoint.
const (
	frameEventRegister        = "register"
	frameEventRegisterSuccess = "register_success"
	frameEventRegisterError   = "register_error"
	frameEventNewMessage      = "new_message"
	frameEventSendMessage     = "send_message"
)

// wireFrame is the envelope for every frame on the socket. Message stays raw
// because inbound payloads arrive in several shapes (see parse.go).
type wireFrame struct {
	Event          string          `json:"event"`
	Email          string          `json:"email,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	ID             string          `json:"id,omitempty"`
	Text           string          `json:"text,omitempty"`
	From           string          `json:"from,omitempty"`
	To             string          `json:"to,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

func encodeRegisterFrame(email string) ([]byte, error) {
	return json.Marshal(wireFrame{Event: frameEventRegister, Email: email})
}

func encodeSendFrame(payload OutboundMessage) ([]byte, error) {
	return json.Marshal(wireFrame{
		Event:          frameEventSendMessage,
		ConversationID: payload.ConversationID,
		ID:             payload.MessageID,
		From:           payload.From,
		To:             payload.To,
		Text:           payload.Text,
		Timestamp:      payload.Timestamp,
	})
}
