package realtime

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var parseNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func decodeFrame(t *testing.T, raw string) wireFrame {
	t.Helper()
	var frame wireFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return frame
}

func TestNormalizePushNestedShape(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c1","message":{"text":"yo","from":"B@X.com","timestamp":"2025-06-01T11:59:00Z"}}`)

	message := normalizePush(frame, parseNow)
	if message.Generic {
		t.Fatal("nested shape must not degrade to generic")
	}
	if message.ConversationID != "c1" || message.Text != "yo" {
		t.Fatalf("unexpected extraction: %+v", message)
	}
	if message.From != "b@x.com" {
		t.Fatalf("sender must be normalized, got %q", message.From)
	}
	if message.Timestamp != "2025-06-01T11:59:00Z" {
		t.Fatalf("unexpected timestamp: %q", message.Timestamp)
	}
}

func TestNormalizePushNestedContentAndSenderAliases(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c1","message":{"content":"hello","sender":"b@x.com"}}`)

	message := normalizePush(frame, parseNow)
	if message.Generic || message.Text != "hello" || message.From != "b@x.com" {
		t.Fatalf("unexpected extraction: %+v", message)
	}
}

func TestNormalizePushFlattenedShape(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c2","text":"hi there","from":"b@x.com"}`)

	message := normalizePush(frame, parseNow)
	if message.Generic {
		t.Fatal("flattened shape must not degrade to generic")
	}
	if message.ConversationID != "c2" || message.Text != "hi there" {
		t.Fatalf("unexpected extraction: %+v", message)
	}
	if message.Timestamp != parseNow.Format(time.RFC3339) {
		t.Fatalf("missing timestamp must be filled from the clock, got %q", message.Timestamp)
	}
}

func TestNormalizePushBareStringShape(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c3","message":"plain words"}`)

	message := normalizePush(frame, parseNow)
	if message.Generic || message.Text != "plain words" || message.ConversationID != "c3" {
		t.Fatalf("unexpected extraction: %+v", message)
	}
}

func TestNormalizePushNestedWinsOverFlattened(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c4","text":"flat","message":{"text":"nested","from":"b@x.com"}}`)

	message := normalizePush(frame, parseNow)
	if message.Text != "nested" {
		t.Fatalf("nested payload must take priority, got %q", message.Text)
	}
}

func TestNormalizePushUnparseableFrameDegradesToGeneric(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","message":{"blob":42}}`)

	message := normalizePush(frame, parseNow)
	if !message.Generic {
		t.Fatal("unparseable frame must degrade to a generic placeholder, not be dropped")
	}
	if !strings.HasPrefix(message.ConversationID, "unknown-") {
		t.Fatalf("expected placeholder conversation reference, got %q", message.ConversationID)
	}
	if message.Text == "" {
		t.Fatal("generic placeholder must carry display text")
	}
}

func TestNormalizePushKeepsServerAssignedID(t *testing.T) {
	frame := decodeFrame(t, `{"event":"new_message","conversationId":"c5","message":{"id":"m9","text":"yo","from":"b@x.com"}}`)

	message := normalizePush(frame, parseNow)
	if message.MessageID != "m9" {
		t.Fatalf("expected server id to survive normalization, got %q", message.MessageID)
	}
}
