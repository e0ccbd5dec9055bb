package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"go.uber.org/zap"
)

var (
	errMissingService = errors.New("messaging service dependency required")
	errMissingHub     = errors.New("hub dependency required")
)

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Service *Service
	Hub     *Hub
	Logger  *zap.Logger
}

// NewHTTPHandler builds the REST and socket surface of the dev server.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Service == nil {
		return nil, errMissingService
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service: deps.Service,
		hub:     deps.Hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	router.GET("/api/messages", handler.handleListConversations)
	router.POST("/api/messages/conversation", handler.handleCreateConversation)
	router.POST("/api/messages/send", handler.handleSendMessage)
	router.GET("/socket", handler.handleSocket)

	return router, nil
}

type httpHandler struct {
	service  *Service
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// socketFrame is the server-side view of every frame on the socket.
type socketFrame struct {
	Event          string              `json:"event"`
	Email          string              `json:"email,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
	Message        *pushMessagePayload `json:"message,omitempty"`
	ID             string              `json:"id,omitempty"`
	Text           string              `json:"text,omitempty"`
	From           string              `json:"from,omitempty"`
	To             string              `json:"to,omitempty"`
	Timestamp      string              `json:"timestamp,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}

type pushMessagePayload struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (h *httpHandler) handleListConversations(c *gin.Context) {
	email := identity.Normalize(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email is required"})
		return
	}

	conversations, err := h.service.ListConversations(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("conversation list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

type createConversationPayload struct {
	Participants []string `json:"participants"`
}

func (h *httpHandler) handleCreateConversation(c *gin.Context) {
	var request createConversationPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Participants) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "two participants are required"})
		return
	}

	conversation, err := h.service.CreateConversation(c.Request.Context(), request.Participants[0], request.Participants[1])
	if err != nil {
		h.logger.Error("conversation create failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	To             string `json:"to"`
	Text           string `json:"text"`
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var request sendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	// Persistence only. Realtime delivery rides the socket mirror the sender
	// issues after this call returns; an offline recipient catches up on the
	// next full load.
	message, err := h.service.SendMessage(c.Request.Context(),
		request.ConversationID, request.From, request.To, request.Text)
	if err != nil {
		status := http.StatusBadRequest
		reason := err.Error()
		if errors.Is(err, ErrConversationNotFound) {
			status = http.StatusNotFound
		} else if !errors.Is(err, ErrEmptyText) && !errors.Is(err, ErrNotParticipant) {
			status = http.StatusInternalServerError
			reason = "failed to send message"
		}
		c.JSON(status, gin.H{"message": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": request.ConversationID,
		"message":        message,
	})
}

func (h *httpHandler) publishNewMessage(conversationID, messageID, text, from, timestamp, recipient string) {
	frame, err := json.Marshal(socketFrame{
		Event:          "new_message",
		ConversationID: conversationID,
		Message: &pushMessagePayload{
			ID:        messageID,
			Text:      text,
			From:      from,
			Timestamp: timestamp,
		},
	})
	if err != nil {
		h.logger.Error("push frame marshal failed", zap.Error(err))
		return
	}
	h.hub.Publish(identity.Normalize(recipient), frame)
}

func (h *httpHandler) handleSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The first frame must register an identity before any push is delivered.
	var register socketFrame
	if err := conn.ReadJSON(&register); err != nil || register.Event != "register" {
		_ = conn.WriteJSON(socketFrame{Event: "register_error", Reason: "register frame expected"})
		return
	}
	email := identity.Normalize(register.Email)
	if email == "" {
		_ = conn.WriteJSON(socketFrame{Event: "register_error", Reason: "email is required"})
		return
	}
	if err := conn.WriteJSON(socketFrame{Event: "register_success", Email: email}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stream, cleanup := h.hub.Subscribe(ctx, email)
	defer cleanup()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case frame, ok := <-stream:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	h.logger.Info("socket registered", zap.String("identity", email))

	for {
		var frame socketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		// Low-latency mirror of an already-persisted send; fan it out to the
		// recipient without touching storage.
		if frame.Event == "send_message" && frame.To != "" {
			h.publishNewMessage(frame.ConversationID, frame.ID, frame.Text,
				identity.Normalize(frame.From), frame.Timestamp, frame.To)
		}
	}

	cancel()
	<-writeDone
}
