// Package messages holds the authoritative in-memory model of conversations
// and reconciles the optimistic-send path with the push-receive path.
package messages

import (
	"fmt"
	"time"

	"github.com/skillswaphq/skillswap-realtime/internal/identity"
)

// Message is one chat message. ID is server-assigned when the message has
// been persisted and empty when only a push event was available.
type Message struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Key returns the deduplication identity of the message: the server id when
// present, otherwise a composite of sender, recipient, text and timestamp.
// The composite cannot distinguish two genuinely identical messages sent
// within the same timestamp resolution; that limitation is accepted.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		identity.Normalize(m.From),
		identity.Normalize(m.To),
		m.Text,
		m.Timestamp,
	)
}

// Conversation is a thread between exactly two participants. Messages is
// kept in arrival order; late-arriving older messages are appended at the
// end, not sorted into place.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	UpdatedAt    string    `json:"updatedAt,omitempty"`
}

// appendMessage inserts the message unless one with the same key is already
// present. Returns whether an insert happened. UpdatedAt holds the timestamp
// of the most recent message, so a late-arriving older message never moves
// it backwards.
func (c *Conversation) appendMessage(message Message) bool {
	key := message.Key()
	for _, existing := range c.Messages {
		if existing.Key() == key {
			return false
		}
	}
	c.Messages = append(c.Messages, message)
	if message.Timestamp != "" && isNewerTimestamp(message.Timestamp, c.UpdatedAt) {
		c.UpdatedAt = message.Timestamp
	}
	return true
}

func isNewerTimestamp(candidate, current string) bool {
	if current == "" {
		return true
	}
	candidateTime, err := time.Parse(time.RFC3339, candidate)
	if err != nil {
		return false
	}
	currentTime, err := time.Parse(time.RFC3339, current)
	if err != nil {
		return true
	}
	return !candidateTime.Before(currentTime)
}

// otherParticipant returns the participant that does not normalize to from.
func (c *Conversation) otherParticipant(from string) string {
	sender := identity.Normalize(from)
	for _, participant := range c.Participants {
		if identity.Normalize(participant) != sender {
			return identity.Normalize(participant)
		}
	}
	return ""
}
