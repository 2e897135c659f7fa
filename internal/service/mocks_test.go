package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dm-service/internal/model"
)

type mockChatRepository struct {
	CreateFunc           func(session *model.ChatSession) error
	GetByIDFunc          func(chatID uuid.UUID) (*model.ChatSession, error)
	FindByPairFunc       func(userA, userB uuid.UUID) (*model.ChatSession, error)
	ListByUserFunc       func(userID uuid.UUID) ([]model.ChatSession, error)
	TouchLastMessageFunc func(chatID uuid.UUID, at time.Time) error
	IsParticipantFunc    func(chatID, userID uuid.UUID) (bool, error)
}

func (m *mockChatRepository) Create(session *model.ChatSession) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(session)
	}
	return nil
}

func (m *mockChatRepository) GetByID(chatID uuid.UUID) (*model.ChatSession, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(chatID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockChatRepository) FindByPair(userA, userB uuid.UUID) (*model.ChatSession, error) {
	if m.FindByPairFunc != nil {
		return m.FindByPairFunc(userA, userB)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockChatRepository) ListByUser(userID uuid.UUID) ([]model.ChatSession, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(userID)
	}
	return nil, nil
}

func (m *mockChatRepository) TouchLastMessage(chatID uuid.UUID, at time.Time) error {
	if m.TouchLastMessageFunc != nil {
		return m.TouchLastMessageFunc(chatID, at)
	}
	return nil
}

func (m *mockChatRepository) IsParticipant(chatID, userID uuid.UUID) (bool, error) {
	if m.IsParticipantFunc != nil {
		return m.IsParticipantFunc(chatID, userID)
	}
	return true, nil
}

type mockMessageRepository struct {
	CreateFunc          func(message *model.Message) error
	GetByIDFunc         func(messageID uuid.UUID) (*model.Message, error)
	ListByChatFunc      func(chatID uuid.UUID, limit, offset int) ([]model.Message, error)
	UpdateFunc          func(message *model.Message) error
	SoftDeleteFunc      func(messageID uuid.UUID) error
	UpsertReadStateFunc func(chatID, userID uuid.UUID, at time.Time) error
	GetReadStateFunc    func(chatID, userID uuid.UUID) (*model.ReadState, error)
	CountUnreadFunc     func(chatID, userID uuid.UUID) (int64, error)
}

func (m *mockMessageRepository) Create(message *model.Message) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(message)
	}
	return nil
}

func (m *mockMessageRepository) GetByID(messageID uuid.UUID) (*model.Message, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(messageID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMessageRepository) ListByChat(chatID uuid.UUID, limit, offset int) ([]model.Message, error) {
	if m.ListByChatFunc != nil {
		return m.ListByChatFunc(chatID, limit, offset)
	}
	return nil, nil
}

func (m *mockMessageRepository) Update(message *model.Message) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(message)
	}
	return nil
}

func (m *mockMessageRepository) SoftDelete(messageID uuid.UUID) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(messageID)
	}
	return nil
}

func (m *mockMessageRepository) UpsertReadState(chatID, userID uuid.UUID, at time.Time) error {
	if m.UpsertReadStateFunc != nil {
		return m.UpsertReadStateFunc(chatID, userID, at)
	}
	return nil
}

func (m *mockMessageRepository) GetReadState(chatID, userID uuid.UUID) (*model.ReadState, error) {
	if m.GetReadStateFunc != nil {
		return m.GetReadStateFunc(chatID, userID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMessageRepository) CountUnread(chatID, userID uuid.UUID) (int64, error) {
	if m.CountUnreadFunc != nil {
		return m.CountUnreadFunc(chatID, userID)
	}
	return 0, nil
}

// mockPublisher records every broadcast.
type mockPublisher struct {
	mu     sync.Mutex
	rooms  []string
	events []model.Event
	err    error
}

func (p *mockPublisher) Broadcast(_ context.Context, roomID string, evt model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, roomID)
	p.events = append(p.events, evt)
	return p.err
}

func (p *mockPublisher) broadcasts() ([]string, []model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.rooms...), append([]model.Event(nil), p.events...)
}
