// Package notify derives user-facing alerts from the inbound push stream,
// independently of the conversation store.
package notify

// Type enumerates the notification kinds.
type Type string

const (
	// TypeNewMessage is an alert for a parsed inbound message.
	TypeNewMessage Type = "NEW_MESSAGE"
	// TypeNewMessageGeneric is the placeholder alert for a push frame that
	// could not be parsed into a real message.
	TypeNewMessageGeneric Type = "NEW_MESSAGE_GENERIC"
	// TypeAlert is a generic, manually raised alert.
	TypeAlert Type = "ALERT"
)

// Notification is one user-facing alert. ID is client-generated and not
// coordinated with any server id. ConversationID is a weak back-reference
// used for lookup only; it may be a placeholder sentinel when the
// originating event could not be parsed.
type Notification struct {
	ID             string `json:"id"`
	Type           Type   `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	From           string `json:"from,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Read           bool   `json:"read"`
	CreatedAt      string `json:"createdAt"`
}
