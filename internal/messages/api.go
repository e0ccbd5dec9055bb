package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 10 * time.Second

// API is the persistence path for conversations and messages. The production
// implementation talks to the messaging backend over HTTP; tests stub it.
type API interface {
	FetchConversations(ctx context.Context, email string) ([]Conversation, error)
	CreateConversation(ctx context.Context, participants [2]string) (Conversation, error)
	SendMessage(ctx context.Context, conversationID, from, to, text string) (Message, error)
}

// APIClient implements API against the REST endpoints of the backend.
type APIClient struct {
	http *resty.Client
}

// NewAPIClient constructs an APIClient rooted at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(defaultRequestTimeout)
	return &APIClient{http: client}
}

type apiErrorPayload struct {
	Message string `json:"message"`
}

func (p apiErrorPayload) describe(status int, operation string) error {
	if p.Message != "" {
		return fmt.Errorf("%s: %s", operation, p.Message)
	}
	return fmt.Errorf("%s: unexpected status %d", operation, status)
}

// FetchConversations returns the server's authoritative conversation list
// for the identity.
func (c *APIClient) FetchConversations(ctx context.Context, email string) ([]Conversation, error) {
	var result struct {
		Conversations []Conversation `json:"conversations"`
	}
	var apiErr apiErrorPayload

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("email", email).
		SetResult(&result).
		SetError(&apiErr).
		Get("/api/messages")
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	if resp.IsError() {
		return nil, apiErr.describe(resp.StatusCode(), "fetch conversations")
	}
	return result.Conversations, nil
}

// CreateConversation creates or returns the conversation for the unordered
// participant pair. The server is idempotent on the pair.
func (c *APIClient) CreateConversation(ctx context.Context, participants [2]string) (Conversation, error) {
	var result struct {
		Conversation Conversation `json:"conversation"`
	}
	var apiErr apiErrorPayload

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string][]string{"participants": {participants[0], participants[1]}}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/messages/conversation")
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if resp.IsError() {
		return Conversation{}, apiErr.describe(resp.StatusCode(), "create conversation")
	}
	return result.Conversation, nil
}

// SendMessage persists one message and returns the canonical server copy.
func (c *APIClient) SendMessage(ctx context.Context, conversationID, from, to, text string) (Message, error) {
	var result struct {
		ConversationID string  `json:"conversationId"`
		Message        Message `json:"message"`
	}
	var apiErr apiErrorPayload

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"conversationId": conversationID,
			"from":           from,
			"to":             to,
			"text":           text,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/messages/send")
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return Message{}, apiErr.describe(resp.StatusCode(), "send message")
	}
	return result.Message, nil
}
