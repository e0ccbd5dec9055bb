// Package realtime maintains the live transport to the messaging backend and
// fans inbound push frames out to subscribers as typed events.
package realtime

// EventType enumerates the events a Manager can deliver. The set is closed;
// subscribers switch on it exhaustively instead of string-keyed dispatch.
type EventType string

const (
	// EventConnected signals the transport reached the server (or the
	// synthetic fallback came up).
	EventConnected EventType = "CONNECTED"
	// EventNewMessage carries an inbound push message.
	EventNewMessage EventType = "NEW_MESSAGE"
	// EventRegisterAck carries the identity-registration acknowledgment.
	EventRegisterAck EventType = "REGISTER_ACK"
	// EventError signals a transport failure after retries were exhausted.
	EventError EventType = "ERROR"
)

// PushMessage is the canonical shape every inbound new-message frame is
// normalized into before fan-out. Generic marks frames that matched none of
// the known payload shapes and were downgraded to a placeholder instead of
// being dropped.
type PushMessage struct {
	ConversationID string
	MessageID      string
	From           string
	Text           string
	Timestamp      string
	Generic        bool
}

// Event is the tagged union delivered to subscribers. Exactly the fields
// relevant to Type are populated.
type Event struct {
	Type EventType
	// Message is set for EventNewMessage.
	Message *PushMessage
	// Registered is set for EventRegisterAck.
	Registered bool
	// Err is set for EventError.
	Err error
}

// OutboundMessage is the payload accepted by SendMessage for best-effort
// low-latency delivery. Durability is the persistence path's job, not ours.
// MessageID carries the server-assigned id when the message was already
// persisted, so the peer can deduplicate the mirror against the push copy.
type OutboundMessage struct {
	ConversationID string
	MessageID      string
	From           string
	To             string
	Text           string
	Timestamp      string
}
