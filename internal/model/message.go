package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is the atomic transcript unit. Within a session messages are
// totally ordered by (CreatedAt, Seq); Seq breaks same-timestamp ties in
// insertion order.
type Message struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	Seq       uint64    `gorm:"autoIncrement;uniqueIndex" json:"-"`
	SessionID string    `gorm:"size:64;not null;index" json:"session_id"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ModelUsed string    `gorm:"size:64" json:"model_used,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
