package handler

import (
	"time"

	"dm-service/internal/model"
	"dm-service/internal/service"
)

type CreateChatRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ChatResponse struct {
	ChatID        string     `json:"chatId"`
	ParticipantA  string     `json:"participantA"`
	ParticipantB  string     `json:"participantB"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount   int64      `json:"unreadCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toChatResponse(session *model.ChatSession, unread int64) ChatResponse {
	return ChatResponse{
		ChatID:        session.ChatID.String(),
		ParticipantA:  session.ParticipantA.String(),
		ParticipantB:  session.ParticipantB.String(),
		LastMessageAt: session.LastMessageAt,
		UnreadCount:   unread,
		CreatedAt:     session.CreatedAt,
	}
}

func toChatResponses(summaries []service.ChatSummary) []ChatResponse {
	responses := make([]ChatResponse, len(summaries))
	for i := range summaries {
		responses[i] = toChatResponse(&summaries[i].ChatSession, summaries[i].UnreadCount)
	}
	return responses
}

type MessageResponse struct {
	MessageID string     `json:"messageId"`
	ChatID    string     `json:"chatId"`
	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	IsEdited  bool       `json:"isEdited"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	SentAt    time.Time  `json:"sentAt"`
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		MessageID: m.MessageID.String(),
		ChatID:    m.ChatID.String(),
		SenderID:  m.SenderID.String(),
		Content:   m.Content,
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		SentAt:    m.SentAt,
	}
}

func toMessageResponses(messages []model.Message) []MessageResponse {
	responses := make([]MessageResponse, len(messages))
	for i := range messages {
		responses[i] = toMessageResponse(&messages[i])
	}
	return responses
}
