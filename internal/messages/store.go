package messages

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"github.com/skillswaphq/skillswap-realtime/internal/realtime"
	"go.uber.org/zap"
)

var (
	errMissingAPI = errors.New("messages: api client is required")
	// ErrEmptyText rejects sends at the boundary; the data model itself does
	// not enforce it.
	ErrEmptyText = errors.New("messages: message text is required")
)

// Publisher is the best-effort low-latency delivery path, satisfied by
// realtime.Manager.
type Publisher interface {
	SendMessage(payload realtime.OutboundMessage) bool
}

// StoreConfig describes the dependencies of a conversation Store.
type StoreConfig struct {
	API       API
	Publisher Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Store is the single source of truth for conversations and their message
// lists. Writes arrive from two independent paths, the request/response
// acknowledgment path and the asynchronous push path, and collapse to a
// single entry per message key.
type Store struct {
	api       API
	publisher Publisher
	logger    *zap.Logger
	clock     func() time.Time

	mu            sync.Mutex
	owner         identity.Identity
	conversations []*Conversation
	loadErr       error
}

// NewStore constructs a conversation Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.API == nil {
		return nil, errMissingAPI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		api:       cfg.API,
		publisher: cfg.Publisher,
		logger:    logger,
		clock:     clock,
	}, nil
}

// LoadAll replaces the entire local collection with the server's
// authoritative list for the identity. A full replace, not a merge: partial
// merge at load time risks resurrecting stale local state. On failure the
// previous local state is left untouched and the error is recorded for
// display.
func (s *Store) LoadAll(ctx context.Context, email string) error {
	who, err := identity.New(email)
	if err != nil {
		return err
	}

	fetched, err := s.api.FetchConversations(ctx, who.String())
	if err != nil {
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		return err
	}

	replacement := make([]*Conversation, 0, len(fetched))
	for index := range fetched {
		conversation := fetched[index]
		replacement = append(replacement, &conversation)
	}

	s.mu.Lock()
	s.owner = who
	s.conversations = replacement
	s.loadErr = nil
	s.mu.Unlock()
	return nil
}

// LoadError returns the recorded failure of the most recent LoadAll, if any.
func (s *Store) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// CreateOrGetConversation creates or looks up the conversation for the
// unordered participant pair. If the conversation already exists locally its
// messages are preserved; only metadata is refreshed.
func (s *Store) CreateOrGetConversation(ctx context.Context, participantA, participantB string) (Conversation, error) {
	pair := [2]string{identity.Normalize(participantA), identity.Normalize(participantB)}
	if pair[0] == "" || pair[1] == "" {
		return Conversation{}, identity.ErrEmptyIdentity
	}

	created, err := s.api.CreateConversation(ctx, pair)
	if err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.conversations {
		if existing.ID == created.ID {
			existing.Participants = created.Participants
			if created.UpdatedAt != "" {
				existing.UpdatedAt = created.UpdatedAt
			}
			return snapshotConversation(existing), nil
		}
	}

	adopted := created
	s.conversations = append([]*Conversation{&adopted}, s.conversations...)
	return snapshotConversation(&adopted), nil
}

// Send persists the message and mirrors it onto the live transport. Phase 1,
// the persistence round-trip, is authoritative: its failure is returned to
// the caller and nothing is applied locally. Phase 2 is a latency
// optimization only and its failure is logged, never surfaced.
func (s *Store) Send(ctx context.Context, conversationID, from, to, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyText
	}
	sender := identity.Normalize(from)
	recipient := identity.Normalize(to)

	persisted, err := s.api.SendMessage(ctx, conversationID, sender, recipient, text)
	if err != nil {
		return Message{}, err
	}

	if inserted := s.applyMessage(conversationID, persisted); !inserted {
		s.logger.Debug("persisted message already present",
			zap.String("conversation_id", conversationID))
	}

	if s.publisher != nil {
		attempted := s.publisher.SendMessage(realtime.OutboundMessage{
			ConversationID: conversationID,
			MessageID:      persisted.ID,
			From:           persisted.From,
			To:             persisted.To,
			Text:           persisted.Text,
			Timestamp:      persisted.Timestamp,
		})
		if !attempted {
			s.logger.Debug("transport mirror skipped, not connected",
				zap.String("conversation_id", conversationID))
		}
	}

	return persisted, nil
}

// ApplyIncoming reconciles a push-path message into the store. The same
// logical message can arrive once via the send acknowledgment and once via
// push; both collapse to a single stored entry. Returns whether an insert
// happened.
func (s *Store) ApplyIncoming(conversationID string, message Message) bool {
	return s.applyMessage(conversationID, message)
}

// Attach subscribes the store to the manager's push stream and returns the
// unsubscribe function.
func (s *Store) Attach(manager *realtime.Manager) func() {
	return manager.Subscribe(realtime.EventNewMessage, func(event realtime.Event) {
		if event.Message == nil || event.Message.Generic {
			return
		}
		push := event.Message
		s.ApplyIncoming(push.ConversationID, Message{
			ID:        push.MessageID,
			From:      push.From,
			Text:      push.Text,
			Timestamp: push.Timestamp,
		})
	})
}

// Conversations returns a snapshot of the collection, most recently active
// first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]Conversation, 0, len(s.conversations))
	for _, conversation := range s.conversations {
		snapshot = append(snapshot, snapshotConversation(conversation))
	}
	return snapshot
}

// Owner returns the identity the collection was last loaded for.
func (s *Store) Owner() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Clear resets all local state (sign-out).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.conversations = nil
	s.loadErr = nil
}

func (s *Store) applyMessage(conversationID string, message Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for position, conversation := range s.conversations {
		if conversation.ID == conversationID {
			index = position
			break
		}
	}
	if index < 0 {
		// Push for a conversation the client has not loaded; the next
		// LoadAll picks it up.
		s.logger.Debug("dropping message for unknown conversation",
			zap.String("conversation_id", conversationID))
		return false
	}

	conversation := s.conversations[index]
	if message.To == "" {
		message.To = conversation.otherParticipant(message.From)
	}
	if !conversation.appendMessage(message) {
		return false
	}

	// Most recently active conversation moves to the front; relative order
	// of the rest is preserved.
	copy(s.conversations[1:index+1], s.conversations[:index])
	s.conversations[0] = conversation
	return true
}

func snapshotConversation(conversation *Conversation) Conversation {
	clone := *conversation
	clone.Participants = append([]string(nil), conversation.Participants...)
	clone.Messages = append([]Message(nil), conversation.Messages...)
	return clone
}
