package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"shout-chat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	return &message, nil
}

// ListBySessionID returns the full transcript, oldest first. Seq breaks
// same-timestamp ties in insertion order.
func (r *MessageRepository) ListBySessionID(sessionID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("seq ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// UpdateContent overwrites a message's content in place. ID and CreatedAt are
// untouched. Returns (nil, nil) when the id is unknown.
func (r *MessageRepository) UpdateContent(id, content string) (*model.Message, error) {
	res := r.db.Model(&model.Message{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return nil, fmt.Errorf("update message content failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(id)
}

func (r *MessageRepository) DeleteByID(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) DeleteBySessionID(sessionID string) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete session messages failed: %w", err)
	}
	return nil
}

// DeleteAfter purges every message in the session strictly after the pivot in
// (created_at, seq) order.
func (r *MessageRepository) DeleteAfter(sessionID string, createdAt time.Time, seq uint64) error {
	if err := r.db.
		Where("session_id = ? AND (created_at > ? OR (created_at = ? AND seq > ?))",
			sessionID, createdAt, createdAt, seq).
		Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages after pivot failed: %w", err)
	}
	return nil
}
