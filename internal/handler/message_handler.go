package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dm-service/internal/middleware"
	"dm-service/internal/service"
)

type MessageHandler struct {
	messages service.MessageService
	chats    service.ChatService
	logger   *zap.Logger
}

func NewMessageHandler(messages service.MessageService, chats service.ChatService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		chats:    chats,
		logger:   logger,
	}
}

// GetMessages returns chat history ascending by send time.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if !h.requireParticipant(c, chatID, userID) {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.messages.GetMessages(c.Request.Context(), chatID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, toMessageResponses(messages))
}

// SendMessage persists a message and fans out message:new.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	message, err := h.messages.CreateMessage(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to send message", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, toMessageResponse(message))
}

// EditMessage updates content; sender only.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	message, err := h.messages.UpdateMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		h.writeMessageError(c, err, "failed to edit message")
		return
	}

	c.JSON(http.StatusOK, toMessageResponse(message))
}

// DeleteMessage soft-deletes; sender only.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		h.writeMessageError(c, err, "failed to delete message")
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkRead is the read acknowledgement; idempotent.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), chatID, userID); err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to mark read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetUnreadCount returns the caller's unread counter for one chat.
func (h *MessageHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if !h.requireParticipant(c, chatID, userID) {
		return
	}

	count, err := h.messages.UnreadCount(c.Request.Context(), chatID, userID)
	if err != nil {
		h.logger.Error("failed to count unread", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chatId": chatID.String(), "unreadCount": count})
}

func (h *MessageHandler) requireParticipant(c *gin.Context, chatID, userID uuid.UUID) bool {
	isParticipant, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		h.logger.Error("failed to check participant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check participant"})
		return false
	}
	if !isParticipant {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return false
	}
	return true
}

func (h *MessageHandler) writeMessageError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, service.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
