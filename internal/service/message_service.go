package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dm-service/internal/model"
	"dm-service/internal/repository"
)

var (
	ErrNotParticipant = errors.New("user is not a participant of this chat")
	ErrNotSender      = errors.New("only the sender can modify a message")
	ErrEmptyContent   = errors.New("message content is required")
)

// EventPublisher fans a room event out to all subscribers. Implemented
// by the realtime router.
type EventPublisher interface {
	Broadcast(ctx context.Context, roomID string, evt model.Event) error
}

type MessageService interface {
	CreateMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*model.Message, error)
	GetMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.Message, error)
	UpdateMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error
	MarkRead(ctx context.Context, chatID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, chatID, userID uuid.UUID) (int64, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	chatRepo    repository.ChatRepository
	publisher   EventPublisher
	logger      *zap.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	chatRepo repository.ChatRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
		publisher:   publisher,
		logger:      logger,
	}
}

// CreateMessage persists first, then publishes message:new to the
// chat's room. A publish failure is logged and swallowed: the message
// is stored, and clients recover it from history on next chat open.
func (s *messageService) CreateMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*model.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	isParticipant, err := s.chatRepo.IsParticipant(chatID, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check participant: %w", err)
	}
	if !isParticipant {
		return nil, ErrNotParticipant
	}

	message := &model.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}
	if err := s.messageRepo.Create(message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := s.chatRepo.TouchLastMessage(chatID, message.SentAt); err != nil {
		s.logger.Warn("failed to update last message time",
			zap.String("chatId", chatID.String()),
			zap.Error(err))
	}

	s.broadcast(ctx, chatID, model.NewMessageEvent(message))
	return message, nil
}

func (s *messageService) GetMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.messageRepo.ListByChat(chatID, limit, offset)
}

func (s *messageService) UpdateMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*model.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != editorID {
		return nil, ErrNotSender
	}

	now := time.Now()
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	if err := s.messageRepo.Update(message); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	s.broadcast(ctx, message.ChatID, model.EditedMessageEvent(message))
	return message, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return err
	}
	if message.SenderID != requesterID {
		return ErrNotSender
	}

	if err := s.messageRepo.SoftDelete(messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.broadcast(ctx, message.ChatID, model.DeletedMessageEvent(message.ChatID, messageID))
	return nil
}

// MarkRead is the read acknowledgement: idempotent, repeated calls just
// move the watermark forward.
func (s *messageService) MarkRead(ctx context.Context, chatID, userID uuid.UUID) error {
	isParticipant, err := s.chatRepo.IsParticipant(chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !isParticipant {
		return ErrNotParticipant
	}
	return s.messageRepo.UpsertReadState(chatID, userID, time.Now())
}

func (s *messageService) UnreadCount(ctx context.Context, chatID, userID uuid.UUID) (int64, error) {
	return s.messageRepo.CountUnread(chatID, userID)
}

func (s *messageService) broadcast(ctx context.Context, chatID uuid.UUID, evt model.Event) {
	if err := s.publisher.Broadcast(ctx, model.ChatRoom(chatID), evt); err != nil {
		s.logger.Warn("failed to broadcast message event",
			zap.String("chatId", chatID.String()),
			zap.String("type", evt.Type),
			zap.Error(err))
	}
}
