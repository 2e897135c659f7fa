package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dm-service/internal/middleware"
	"dm-service/internal/service"
)

type ChatHandler struct {
	chats    service.ChatService
	messages service.MessageService
	logger   *zap.Logger
}

func NewChatHandler(chats service.ChatService, messages service.MessageService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chats:    chats,
		messages: messages,
		logger:   logger,
	}
}

// CreateChat finds or creates the direct conversation between the
// caller and the requested user.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	other, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	session, err := h.chats.FindOrCreate(c.Request.Context(), userID, other)
	if err != nil {
		if errors.Is(err, service.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to open chat", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open chat"})
		return
	}

	unread, _ := h.messages.UnreadCount(c.Request.Context(), session.ChatID, userID)
	c.JSON(http.StatusOK, toChatResponse(session, unread))
}

// GetMyChats lists the caller's conversations, most recent first, with
// unread counts.
func (h *ChatHandler) GetMyChats(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summaries, err := h.chats.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}

	c.JSON(http.StatusOK, toChatResponses(summaries))
}

// GetChat returns one session the caller participates in.
func (h *ChatHandler) GetChat(c *gin.Context) {
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

	session, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if !session.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	unread, _ := h.messages.UnreadCount(c.Request.Context(), chatID, userID)
	c.JSON(http.StatusOK, toChatResponse(session, unread))
}
