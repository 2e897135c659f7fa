package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dm-service/internal/config"
	"dm-service/internal/handler"
	"dm-service/internal/middleware"
	"dm-service/internal/realtime"
)

// Setup wires the gin engine: middleware, health/metrics, the
// WebSocket endpoint and the authenticated CRUD surface.
func Setup(
	cfg *config.Config,
	hub *realtime.Hub,
	validator middleware.TokenValidator,
	chatHandler *handler.ChatHandler,
	messageHandler *handler.MessageHandler,
	presenceHandler *handler.PresenceHandler,
	healthHandler *handler.HealthHandler,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS("*"))
	r.Use(middleware.Metrics())

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.Server.BasePath)
	{
		// The socket authenticates in-band with its first event.
		api.GET("/ws", hub.HandleWebSocket)

		authenticated := api.Group("")
		authenticated.Use(middleware.AuthMiddleware(validator))
		{
			authenticated.POST("/chats", chatHandler.CreateChat)
			authenticated.GET("/chats", chatHandler.GetMyChats)
			authenticated.GET("/chats/:chatId", chatHandler.GetChat)

			authenticated.GET("/messages/:chatId", messageHandler.GetMessages)
			authenticated.POST("/messages/:chatId", messageHandler.SendMessage)
			authenticated.PATCH("/messages/:messageId", messageHandler.EditMessage)
			authenticated.DELETE("/messages/:messageId", messageHandler.DeleteMessage)
			authenticated.POST("/messages/:chatId/read", messageHandler.MarkRead)
			authenticated.GET("/messages/:chatId/unread", messageHandler.GetUnreadCount)

			authenticated.GET("/presence/online", presenceHandler.GetOnlineUsers)
		}
	}

	return r
}
