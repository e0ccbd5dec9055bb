// Package devserver implements the messaging wire contract locally: the REST
// endpoints and the socket push path the client core talks to. It exists so
// the client can run and be tested end to end without the production backend.
package devserver

import (
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConversationRecord is the row backing one conversation. The participant
// pair is stored sorted so the unordered pair maps to one row.
type ConversationRecord struct {
	ID           string    `gorm:"column:conversation_id;primaryKey;size:190;not null"`
	ParticipantA string    `gorm:"column:participant_a;size:320;not null;uniqueIndex:idx_participant_pair"`
	ParticipantB string    `gorm:"column:participant_b;size:320;not null;uniqueIndex:idx_participant_pair"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName exposes the table backing conversations.
func (ConversationRecord) TableName() string {
	return "conversations"
}

// MessageRecord is the row backing one persisted message.
type MessageRecord struct {
	ID             string    `gorm:"column:message_id;primaryKey;size:190;not null"`
	ConversationID string    `gorm:"column:conversation_id;size:190;not null;index"`
	FromEmail      string    `gorm:"column:from_email;size:320;not null"`
	ToEmail        string    `gorm:"column:to_email;size:320;not null"`
	Text           string    `gorm:"column:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName exposes the table backing messages.
func (MessageRecord) TableName() string {
	return "messages"
}

// OpenSQLite establishes the SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&ConversationRecord{}, &MessageRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// sortedPair normalizes and orders an unordered participant pair.
func sortedPair(participantA, participantB string) (string, string) {
	first := identity.Normalize(participantA)
	second := identity.Normalize(participantB)
	if first > second {
		first, second = second, first
	}
	return first, second
}
