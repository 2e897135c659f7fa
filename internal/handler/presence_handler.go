package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/presence"
)

type PresenceHandler struct {
	coordinator *presence.Coordinator
	logger      *zap.Logger
}

func NewPresenceHandler(coordinator *presence.Coordinator, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// GetOnlineUsers returns the current online set, TTL filter applied.
func (h *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	online, err := h.coordinator.ListOnline(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list online users", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence store unavailable"})
		return
	}
	if online == nil {
		online = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"userIds": online, "count": len(online)})
}
