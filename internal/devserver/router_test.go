package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skillswaphq/skillswap-realtime/internal/messages"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", atomic.AddInt64(&databaseSequence, 1))
	db, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, IDProvider: &sequenceIDProvider{}})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	hub := NewHub()
	handler, err := NewHTTPHandler(Dependencies{Service: service, Hub: hub})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, hub
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	response, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return response
}

func decodeBody(t *testing.T, response *http.Response, target any) {
	t.Helper()
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func createConversation(t *testing.T, server *httptest.Server, participantA, participantB string) messages.Conversation {
	t.Helper()
	response := postJSON(t, server.URL+"/api/messages/conversation",
		map[string]any{"participants": []string{participantA, participantB}})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", response.StatusCode)
	}
	var payload struct {
		Conversation messages.Conversation `json:"conversation"`
	}
	decodeBody(t, response, &payload)
	return payload.Conversation
}

func TestListConversationsRequiresEmail(t *testing.T) {
	server, _ := newTestServer(t)

	response, err := http.Get(server.URL + "/api/messages")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestCreateConversationValidatesParticipants(t *testing.T) {
	server, _ := newTestServer(t)

	response := postJSON(t, server.URL+"/api/messages/conversation",
		map[string]any{"participants": []string{"a@x.com"}})
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestSendAndListRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)
	conversation := createConversation(t, server, "a@x.com", "b@x.com")

	response := postJSON(t, server.URL+"/api/messages/send", map[string]any{
		"conversationId": conversation.ID,
		"from":           "a@x.com",
		"to":             "b@x.com",
		"text":           "hello",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", response.StatusCode)
	}
	var sendPayload struct {
		ConversationID string           `json:"conversationId"`
		Message        messages.Message `json:"message"`
	}
	decodeBody(t, response, &sendPayload)
	if sendPayload.Message.ID == "" || sendPayload.Message.Text != "hello" {
		t.Fatalf("unexpected message: %+v", sendPayload.Message)
	}

	listResponse, err := http.Get(server.URL + "/api/messages?email=b@x.com")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if listResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", listResponse.StatusCode)
	}
	var listPayload struct {
		Conversations []messages.Conversation `json:"conversations"`
	}
	decodeBody(t, listResponse, &listPayload)
	if len(listPayload.Conversations) != 1 || len(listPayload.Conversations[0].Messages) != 1 {
		t.Fatalf("unexpected list payload: %+v", listPayload.Conversations)
	}
}

func TestSendToUnknownConversationReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	response := postJSON(t, server.URL+"/api/messages/send", map[string]any{
		"conversationId": "missing",
		"from":           "a@x.com",
		"to":             "b@x.com",
		"text":           "hello",
	})
	defer response.Body.Close()
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.StatusCode)
	}
}

func TestSendEmptyTextReturns400(t *testing.T) {
	server, _ := newTestServer(t)
	conversation := createConversation(t, server, "a@x.com", "b@x.com")

	response := postJSON(t, server.URL+"/api/messages/send", map[string]any{
		"conversationId": conversation.ID,
		"from":           "a@x.com",
		"to":             "b@x.com",
		"text":           "   ",
	})
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
	var errorBody struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(response.Body).Decode(&errorBody); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if errorBody.Message == "" {
		t.Fatal("error responses must carry a message field")
	}
}

func TestSendPersistsWithoutDirectPush(t *testing.T) {
	server, hub := newTestServer(t)
	conversation := createConversation(t, server, "a@x.com", "b@x.com")

	stream, cleanup := hub.Subscribe(context.Background(), "b@x.com")
	defer cleanup()

	response := postJSON(t, server.URL+"/api/messages/send", map[string]any{
		"conversationId": conversation.ID,
		"from":           "a@x.com",
		"to":             "b@x.com",
		"text":           "ping",
	})
	response.Body.Close()

	// Delivery belongs to the socket mirror; the persistence endpoint must
	// not push on its own or the recipient would see every message twice.
	select {
	case frame := <-stream:
		t.Fatalf("unexpected push from the persistence endpoint: %s", string(frame))
	case <-time.After(50 * time.Millisecond):
	}
}

func dialSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("socket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) socketFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("deadline failed: %v", err)
	}
	var frame socketFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("frame read failed: %v", err)
	}
	return frame
}

func TestSocketRegisterHandshake(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialSocket(t, server)

	if err := conn.WriteJSON(socketFrame{Event: "register", Email: "A@X.com"}); err != nil {
		t.Fatalf("register write failed: %v", err)
	}
	ack := readFrame(t, conn)
	if ack.Event != "register_success" || ack.Email != "a@x.com" {
		t.Fatalf("unexpected handshake reply: %+v", ack)
	}
}

func TestSocketRejectsNonRegisterFirstFrame(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialSocket(t, server)

	if err := conn.WriteJSON(socketFrame{Event: "send_message"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply := readFrame(t, conn)
	if reply.Event != "register_error" {
		t.Fatalf("expected register_error, got %+v", reply)
	}
}

func TestSocketPushDelivery(t *testing.T) {
	server, hub := newTestServer(t)
	conn := dialSocket(t, server)

	if err := conn.WriteJSON(socketFrame{Event: "register", Email: "b@x.com"}); err != nil {
		t.Fatalf("register write failed: %v", err)
	}
	if ack := readFrame(t, conn); ack.Event != "register_success" {
		t.Fatalf("unexpected handshake reply: %+v", ack)
	}

	frame, err := json.Marshal(socketFrame{
		Event:          "new_message",
		ConversationID: "c1",
		Message:        &pushMessagePayload{ID: "m1", Text: "hi", From: "a@x.com"},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// Registration races the hub subscription; retry until the socket sees it.
	deadline := time.Now().Add(time.Second)
	for {
		hub.Publish("b@x.com", frame)
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			t.Fatalf("deadline failed: %v", err)
		}
		var push socketFrame
		if err := conn.ReadJSON(&push); err == nil {
			if push.Event != "new_message" || push.Message == nil || push.Message.Text != "hi" {
				t.Fatalf("unexpected push: %+v", push)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for push delivery")
		}
	}
}

func TestSocketMirrorsSendToRecipient(t *testing.T) {
	server, hub := newTestServer(t)
	conn := dialSocket(t, server)

	if err := conn.WriteJSON(socketFrame{Event: "register", Email: "a@x.com"}); err != nil {
		t.Fatalf("register write failed: %v", err)
	}
	if ack := readFrame(t, conn); ack.Event != "register_success" {
		t.Fatalf("unexpected handshake reply: %+v", ack)
	}

	stream, cleanup := hub.Subscribe(context.Background(), "b@x.com")
	defer cleanup()

	if err := conn.WriteJSON(socketFrame{
		Event:          "send_message",
		ConversationID: "c1",
		ID:             "m1",
		From:           "A@X.com",
		To:             "b@x.com",
		Text:           "mirrored",
	}); err != nil {
		t.Fatalf("send write failed: %v", err)
	}

	select {
	case raw := <-stream:
		var push socketFrame
		if err := json.Unmarshal(raw, &push); err != nil {
			t.Fatalf("failed to decode mirror frame: %v", err)
		}
		if push.Event != "new_message" || push.Message == nil {
			t.Fatalf("unexpected mirror frame: %+v", push)
		}
		if push.Message.ID != "m1" || push.Message.From != "a@x.com" || push.Message.Text != "mirrored" {
			t.Fatalf("unexpected mirror payload: %+v", push.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mirror frame")
	}
}
