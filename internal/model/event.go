package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried over the socket, client to server.
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join-room"
	EventHeartbeat    = "heartbeat"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
)

// Event types carried over the socket, server to room.
const (
	EventMessageNew     = "message:new"
	EventMessageEdited  = "message:edited"
	EventMessageDeleted = "message:deleted"
	EventOnlineUsers    = "onlineUsers"
	EventUserTyping     = "user-typing"
)

// PresenceRoom is the well-known room every authenticated connection
// joins to receive online-set broadcasts.
const PresenceRoom = "presence"

// ChatRoom derives the fanout room name for a chat session.
func ChatRoom(chatID uuid.UUID) string {
	return fmt.Sprintf("chat-%s", chatID)
}

// Event is the single wire envelope for every socket event, both
// directions. Unused fields are omitted; Type decides which are read.
type Event struct {
	Type      string     `json:"type"`
	UserID    string     `json:"userId,omitempty"`
	Token     string     `json:"token,omitempty"`
	RoomID    string     `json:"roomId,omitempty"`
	ChatID    string     `json:"chatId,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	SenderID  string     `json:"senderId,omitempty"`
	Content   string     `json:"content,omitempty"`
	IsTyping  bool       `json:"isTyping,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	UserIDs   []string   `json:"userIds,omitempty"`
}

// NewMessageEvent builds the message:new fanout event for a persisted message.
func NewMessageEvent(m *Message) Event {
	sentAt := m.SentAt
	return Event{
		Type:      EventMessageNew,
		ChatID:    m.ChatID.String(),
		MessageID: m.MessageID.String(),
		SenderID:  m.SenderID.String(),
		Content:   m.Content,
		SentAt:    &sentAt,
	}
}

// EditedMessageEvent builds the message:edited fanout event.
func EditedMessageEvent(m *Message) Event {
	return Event{
		Type:      EventMessageEdited,
		ChatID:    m.ChatID.String(),
		MessageID: m.MessageID.String(),
		SenderID:  m.SenderID.String(),
		Content:   m.Content,
		EditedAt:  m.EditedAt,
	}
}

// DeletedMessageEvent builds the message:deleted fanout event.
func DeletedMessageEvent(chatID, messageID uuid.UUID) Event {
	return Event{
		Type:      EventMessageDeleted,
		ChatID:    chatID.String(),
		MessageID: messageID.String(),
	}
}

// OnlineUsersEvent builds the full online-set broadcast.
func OnlineUsersEvent(userIDs []string) Event {
	if userIDs == nil {
		userIDs = []string{}
	}
	return Event{
		Type:    EventOnlineUsers,
		UserIDs: userIDs,
	}
}
