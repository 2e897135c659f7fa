package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dm-service/internal/model"
)

type ChatRepository interface {
	Create(session *model.ChatSession) error
	GetByID(chatID uuid.UUID) (*model.ChatSession, error)
	FindByPair(userA, userB uuid.UUID) (*model.ChatSession, error)
	ListByUser(userID uuid.UUID) ([]model.ChatSession, error)
	TouchLastMessage(chatID uuid.UUID, at time.Time) error
	IsParticipant(chatID, userID uuid.UUID) (bool, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(session *model.ChatSession) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}
	return db.Create(session).Error
}

func (r *chatRepository) GetByID(chatID uuid.UUID) (*model.ChatSession, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	var session model.ChatSession
	if err := db.First(&session, "chat_id = ?", chatID).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) FindByPair(userA, userB uuid.UUID) (*model.ChatSession, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	a, b := model.NormalizePair(userA, userB)

	var session model.ChatSession
	if err := db.First(&session, "participant_a = ? AND participant_b = ?", a, b).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) ListByUser(userID uuid.UUID) ([]model.ChatSession, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	var sessions []model.ChatSession
	err = db.
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&sessions).Error
	return sessions, err
}

func (r *chatRepository) TouchLastMessage(chatID uuid.UUID, at time.Time) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}
	return db.Model(&model.ChatSession{}).
		Where("chat_id = ?", chatID).
		Update("last_message_at", at).Error
}

func (r *chatRepository) IsParticipant(chatID, userID uuid.UUID) (bool, error) {
	db, err := resolve(r.db)
	if err != nil {
		return false, err
	}

	var count int64
	err = db.Model(&model.ChatSession{}).
		Where("chat_id = ? AND (participant_a = ? OR participant_b = ?)", chatID, userID, userID).
		Count(&count).Error
	return count > 0, err
}
