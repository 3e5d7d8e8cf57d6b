package model

import "time"

const (
	TurnEventCompleted      = "turn_completed"
	TurnEventFallback       = "turn_fallback"
	TurnEventCancelled      = "turn_cancelled"
	TurnEventMessageEdited  = "message_edited"
	TurnEventSessionCleared = "session_cleared"
)

// TurnEvent is an audit record of a conversation mutation. Events ride the
// message queue and are persisted asynchronously; losing one never fails the
// turn it describes.
type TurnEvent struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	SessionID          string    `gorm:"size:64;not null;index" json:"session_id"`
	Kind               string    `gorm:"size:32;not null" json:"kind"`
	UserMessageID      string    `gorm:"size:36" json:"user_message_id,omitempty"`
	AssistantMessageID string    `gorm:"size:36" json:"assistant_message_id,omitempty"`
	ModelUsed          string    `gorm:"size:64" json:"model_used,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
