package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"github.com/skillswaphq/skillswap-realtime/internal/messages"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	// ErrConversationNotFound indicates an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotParticipant indicates a sender or recipient outside the pair.
	ErrNotParticipant = errors.New("sender and recipient must be participants")
	// ErrEmptyText rejects blank message bodies.
	ErrEmptyText = errors.New("message text is required")

	noOpLogger = zap.NewNop()
)

// IDProvider issues identifiers for conversations and messages.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ServiceConfig describes the dependencies of the messaging service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns conversation and message persistence for the dev server.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the messaging service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListConversations returns every conversation the identity participates in,
// most recently active first, with messages in chronological order.
func (s *Service) ListConversations(ctx context.Context, email string) ([]messages.Conversation, error) {
	normalized := identity.Normalize(email)
	var records []ConversationRecord
	err := s.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", normalized, normalized).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		s.logger.Error("conversation list query failed", zap.Error(err))
		return nil, err
	}

	conversations := make([]messages.Conversation, 0, len(records))
	for _, record := range records {
		conversation, err := s.buildConversation(ctx, record)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, nil
}

// CreateConversation creates or returns the conversation for the unordered
// participant pair. Idempotent on the pair.
func (s *Service) CreateConversation(ctx context.Context, participantA, participantB string) (messages.Conversation, error) {
	first, second := sortedPair(participantA, participantB)
	if first == "" || second == "" {
		return messages.Conversation{}, fmt.Errorf("two participants are required")
	}

	var record ConversationRecord
	err := s.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", first, second).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, idErr := s.idProvider.NewID()
		if idErr != nil {
			return messages.Conversation{}, idErr
		}
		record = ConversationRecord{
			ID:           id,
			ParticipantA: first,
			ParticipantB: second,
			UpdatedAt:    s.clock().UTC(),
		}
		if createErr := s.db.WithContext(ctx).Create(&record).Error; createErr != nil {
			s.logger.Error("conversation create failed", zap.Error(createErr))
			return messages.Conversation{}, createErr
		}
	} else if err != nil {
		s.logger.Error("conversation lookup failed", zap.Error(err))
		return messages.Conversation{}, err
	}

	return s.buildConversation(ctx, record)
}

// SendMessage persists one message and returns its canonical copy.
func (s *Service) SendMessage(ctx context.Context, conversationID, from, to, text string) (messages.Message, error) {
	if strings.TrimSpace(text) == "" {
		return messages.Message{}, ErrEmptyText
	}

	var record ConversationRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return messages.Message{}, ErrConversationNotFound
	}
	if err != nil {
		s.logger.Error("conversation lookup failed", zap.Error(err))
		return messages.Message{}, err
	}

	sender := identity.Normalize(from)
	recipient := identity.Normalize(to)
	if !record.hasParticipants(sender, recipient) {
		return messages.Message{}, ErrNotParticipant
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return messages.Message{}, err
	}
	now := s.clock().UTC()
	message := MessageRecord{
		ID:             id,
		ConversationID: conversationID,
		FromEmail:      sender,
		ToEmail:        recipient,
		Text:           text,
		CreatedAt:      now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&ConversationRecord{}).
			Where("conversation_id = ?", conversationID).
			Update("updated_at", now).Error
	})
	if txErr != nil {
		s.logger.Error("message persist failed", zap.Error(txErr))
		return messages.Message{}, txErr
	}

	return toMessage(message), nil
}

func (s *Service) buildConversation(ctx context.Context, record ConversationRecord) (messages.Conversation, error) {
	var rows []MessageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", record.ID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		s.logger.Error("message list query failed", zap.Error(err))
		return messages.Conversation{}, err
	}

	history := make([]messages.Message, 0, len(rows))
	for _, row := range rows {
		history = append(history, toMessage(row))
	}
	return messages.Conversation{
		ID:           record.ID,
		Participants: []string{record.ParticipantA, record.ParticipantB},
		Messages:     history,
		UpdatedAt:    record.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (r ConversationRecord) hasParticipants(sender, recipient string) bool {
	pair := map[string]bool{r.ParticipantA: true, r.ParticipantB: true}
	return pair[sender] && pair[recipient]
}

func toMessage(record MessageRecord) messages.Message {
	return messages.Message{
		ID:        record.ID,
		From:      record.FromEmail,
		To:        record.ToEmail,
		Text:      record.Text,
		Timestamp: record.CreatedAt.UTC().Format(time.RFC3339),
	}
}
