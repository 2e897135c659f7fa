package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dm-service/internal/model"
)

type MessageRepository interface {
	Create(message *model.Message) error
	GetByID(messageID uuid.UUID) (*model.Message, error)
	ListByChat(chatID uuid.UUID, limit, offset int) ([]model.Message, error)
	Update(message *model.Message) error
	SoftDelete(messageID uuid.UUID) error

	UpsertReadState(chatID, userID uuid.UUID, at time.Time) error
	GetReadState(chatID, userID uuid.UUID) (*model.ReadState, error)
	CountUnread(chatID, userID uuid.UUID) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *model.Message) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}
	return db.Create(message).Error
}

func (r *messageRepository) GetByID(messageID uuid.UUID) (*model.Message, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	var message model.Message
	if err := db.First(&message, "message_id = ?", messageID).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByChat returns history ascending by send time, soft-deleted rows
// excluded by gorm's default scope.
func (r *messageRepository) ListByChat(chatID uuid.UUID, limit, offset int) ([]model.Message, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	err = db.Where("chat_id = ?", chatID).
		Order("sent_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Update(message *model.Message) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}
	return db.Save(message).Error
}

func (r *messageRepository) SoftDelete(messageID uuid.UUID) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}
	return db.Delete(&model.Message{}, "message_id = ?", messageID).Error
}

func (r *messageRepository) UpsertReadState(chatID, userID uuid.UUID, at time.Time) error {
	db, err := resolve(r.db)
	if err != nil {
		return err
	}

	state := &model.ReadState{
		ChatID:     chatID,
		UserID:     userID,
		LastReadAt: at,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
	}).Create(state).Error
}

func (r *messageRepository) GetReadState(chatID, userID uuid.UUID) (*model.ReadState, error) {
	db, err := resolve(r.db)
	if err != nil {
		return nil, err
	}

	var state model.ReadState
	if err := db.First(&state, "chat_id = ? AND user_id = ?", chatID, userID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// CountUnread counts messages the other party sent after the user's
// last read acknowledgement. No read state means everything from the
// peer is unread.
func (r *messageRepository) CountUnread(chatID, userID uuid.UUID) (int64, error) {
	db, err := resolve(r.db)
	if err != nil {
		return 0, err
	}

	query := db.Model(&model.Message{}).
		Where("chat_id = ? AND sender_id != ?", chatID, userID)

	state, err := r.GetReadState(chatID, userID)
	if err == nil {
		query = query.Where("sent_at > ?", state.LastReadAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var count int64
	err = query.Count(&count).Error
	return count, err
}
