package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a persisted chat message. Deletes are soft: the row stays
// behind gorm's DeletedAt so already-delivered clients can still
// resolve the id from a message:deleted event.
type Message struct {
	MessageID uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"messageId"`
	ChatID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_message_chat_sent" json:"chatId"`
	SenderID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"senderId"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	IsEdited  bool           `gorm:"default:false" json:"isEdited"`
	EditedAt  *time.Time     `json:"editedAt,omitempty"`
	SentAt    time.Time      `gorm:"autoCreateTime;index:idx_message_chat_sent" json:"sentAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}
