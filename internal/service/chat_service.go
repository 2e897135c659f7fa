package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dm-service/internal/model"
	"dm-service/internal/repository"
)

var ErrSelfChat = errors.New("cannot open a chat with yourself")

// ChatSummary is a session plus the caller's unread count, for listing.
type ChatSummary struct {
	model.ChatSession
	UnreadCount int64 `json:"unreadCount"`
}

type ChatService interface {
	FindOrCreate(ctx context.Context, me, other uuid.UUID) (*model.ChatSession, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (*model.ChatSession, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]ChatSummary, error)
	IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

type chatService struct {
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
}

func NewChatService(chatRepo repository.ChatRepository, messageRepo repository.MessageRepository) ChatService {
	return &chatService{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
	}
}

// FindOrCreate returns the existing session between the two users or
// creates it. The pair is normalized so (a,b) and (b,a) resolve to the
// same session; a concurrent create loses to the unique index and is
// retried as a lookup.
func (s *chatService) FindOrCreate(ctx context.Context, me, other uuid.UUID) (*model.ChatSession, error) {
	if me == other {
		return nil, ErrSelfChat
	}

	session, err := s.chatRepo.FindByPair(me, other)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up chat session: %w", err)
	}

	a, b := model.NormalizePair(me, other)
	session = &model.ChatSession{ParticipantA: a, ParticipantB: b}
	if err := s.chatRepo.Create(session); err != nil {
		// Lost a create race; the winner's row is what we want.
		if existing, lookupErr := s.chatRepo.FindByPair(me, other); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return session, nil
}

func (s *chatService) GetChat(ctx context.Context, chatID uuid.UUID) (*model.ChatSession, error) {
	return s.chatRepo.GetByID(chatID)
}

func (s *chatService) ListForUser(ctx context.Context, userID uuid.UUID) ([]ChatSummary, error) {
	sessions, err := s.chatRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(sessions))
	for _, session := range sessions {
		unread, err := s.messageRepo.CountUnread(session.ChatID, userID)
		if err != nil {
			unread = 0
		}
		summaries = append(summaries, ChatSummary{ChatSession: session, UnreadCount: unread})
	}
	return summaries, nil
}

func (s *chatService) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	return s.chatRepo.IsParticipant(chatID, userID)
}
