package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession is a direct conversation between exactly two users.
// The participant pair is stored in normalized order so that one
// unique index covers both (a,b) and (b,a) lookups.
type ChatSession struct {
	ChatID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"chatId"`
	ParticipantA  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_session_pair" json:"participantA"`
	ParticipantB  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_session_pair" json:"participantB"`
	LastMessageAt *time.Time     `gorm:"index" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	Messages      []Message      `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// HasParticipant reports whether userID is one of the two parties.
func (c *ChatSession) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// OtherParticipant returns the peer of userID, or uuid.Nil if userID
// is not part of the session.
func (c *ChatSession) OtherParticipant(userID uuid.UUID) uuid.UUID {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return uuid.Nil
}

// NormalizePair orders two user ids deterministically.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// ReadState tracks how far a user has read into a session. One row per
// (chat, user); upserted on every read acknowledgement.
type ReadState struct {
	ChatID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"chatId"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
	LastReadAt time.Time `gorm:"not null" json:"lastReadAt"`
}

func (ReadState) TableName() string {
	return "read_states"
}
