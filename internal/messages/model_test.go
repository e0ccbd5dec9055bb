package messages

import "testing"

func TestMessageKeyPrefersServerID(t *testing.T) {
	withID := Message{ID: "m1", From: "a@x.com", To: "b@x.com", Text: "hi", Timestamp: "2025-06-01T12:00:00Z"}
	if withID.Key() != "m1" {
		t.Fatalf("expected server id key, got %q", withID.Key())
	}
}

func TestMessageKeyCompositeNormalizesParticipants(t *testing.T) {
	first := Message{From: "A@X.com ", To: "b@x.com", Text: "hi", Timestamp: "2025-06-01T12:00:00Z"}
	second := Message{From: "a@x.com", To: "B@X.COM", Text: "hi", Timestamp: "2025-06-01T12:00:00Z"}
	if first.Key() != second.Key() {
		t.Fatalf("composite keys must agree after normalization: %q vs %q", first.Key(), second.Key())
	}
}

func TestMessageKeyCompositeDistinguishesTimestamps(t *testing.T) {
	first := Message{From: "a@x.com", To: "b@x.com", Text: "hi", Timestamp: "2025-06-01T12:00:00Z"}
	second := Message{From: "a@x.com", To: "b@x.com", Text: "hi", Timestamp: "2025-06-01T12:00:01Z"}
	if first.Key() == second.Key() {
		t.Fatal("distinct timestamps must produce distinct keys")
	}
}

func TestAppendMessageKeepsArrivalOrder(t *testing.T) {
	conversation := Conversation{ID: "c1", Participants: []string{"a@x.com", "b@x.com"}}
	conversation.appendMessage(Message{From: "a@x.com", To: "b@x.com", Text: "later", Timestamp: "2025-06-01T12:00:05Z"})
	conversation.appendMessage(Message{From: "b@x.com", To: "a@x.com", Text: "earlier", Timestamp: "2025-06-01T12:00:01Z"})

	if conversation.Messages[0].Text != "later" || conversation.Messages[1].Text != "earlier" {
		t.Fatalf("messages must stay in arrival order, got %+v", conversation.Messages)
	}
}

func TestAppendMessageNeverMovesUpdatedAtBackwards(t *testing.T) {
	conversation := Conversation{ID: "c1", Participants: []string{"a@x.com", "b@x.com"}}
	conversation.appendMessage(Message{From: "a@x.com", To: "b@x.com", Text: "newest", Timestamp: "2025-06-01T12:00:05Z"})
	conversation.appendMessage(Message{From: "b@x.com", To: "a@x.com", Text: "straggler", Timestamp: "2025-06-01T12:00:01Z"})

	if conversation.UpdatedAt != "2025-06-01T12:00:05Z" {
		t.Fatalf("UpdatedAt must hold the most recent message timestamp, got %q", conversation.UpdatedAt)
	}

	conversation.appendMessage(Message{From: "a@x.com", To: "b@x.com", Text: "fresher", Timestamp: "2025-06-01T12:00:09Z"})
	if conversation.UpdatedAt != "2025-06-01T12:00:09Z" {
		t.Fatalf("a genuinely newer message must advance UpdatedAt, got %q", conversation.UpdatedAt)
	}
}

func TestAppendMessageSkipsDuplicates(t *testing.T) {
	conversation := Conversation{ID: "c1", Participants: []string{"a@x.com", "b@x.com"}}
	message := Message{From: "a@x.com", To: "b@x.com", Text: "hi", Timestamp: "2025-06-01T12:00:00Z"}
	if !conversation.appendMessage(message) {
		t.Fatal("first append must insert")
	}
	if conversation.appendMessage(message) {
		t.Fatal("second append must be skipped")
	}
}

func TestOtherParticipant(t *testing.T) {
	conversation := Conversation{Participants: []string{"A@X.com", "b@x.com"}}
	if got := conversation.otherParticipant("a@x.com"); got != "b@x.com" {
		t.Fatalf("expected b@x.com, got %q", got)
	}
	if got := conversation.otherParticipant("b@x.com"); got != "a@x.com" {
		t.Fatalf("expected a@x.com, got %q", got)
	}
}
