package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dm-service/internal/config"
	"dm-service/internal/database"
	"dm-service/internal/handler"
	"dm-service/internal/middleware"
	"dm-service/internal/presence"
	"dm-service/internal/realtime"
	"dm-service/internal/repository"
	"dm-service/internal/router"
	"dm-service/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting dm-service",
		zap.Int("port", cfg.Server.Port),
		zap.String("basePath", cfg.Server.BasePath),
		zap.Duration("presenceTTL", cfg.Presence.TTL))

	// Postgres can come up after us; realtime traffic does not need it.
	db, err := database.NewDB(cfg)
	if err != nil {
		logger.Warn("postgres unavailable at startup, retrying in background", zap.Error(err))
		database.NewAsync(cfg, 5*time.Second)
	} else {
		database.SetDB(db)
		logger.Info("postgres connected")
	}

	// Redis backs both presence and the broadcast transport. Without
	// it the service still runs single-node: memory store + in-process
	// transport.
	var store presence.Store
	var transport realtime.Transport
	redisClient, err := database.NewRedis(cfg)
	if err != nil {
		logger.Warn("redis unavailable, running single-node", zap.Error(err))
		store = presence.NewMemoryStore(cfg.Presence.TTL)
		transport = realtime.NewInProcTransport()
	} else {
		logger.Info("redis connected")
		store = presence.NewRedisStore(redisClient, cfg.Presence.TTL)
		transport = realtime.NewRedisTransport(redisClient)
	}

	registry := realtime.NewRegistry()
	rtRouter := realtime.NewRouter(registry, transport, logger)
	coordinator := presence.NewCoordinator(store, rtRouter, cfg.Presence.SweepInterval, logger)

	chatRepo := repository.NewChatRepository(database.GetDB())
	messageRepo := repository.NewMessageRepository(database.GetDB())

	chatService := service.NewChatService(chatRepo, messageRepo)
	messageService := service.NewMessageService(messageRepo, chatRepo, rtRouter, logger)

	validator := middleware.NewAuthServiceValidator(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)
	hub := realtime.NewHub(registry, rtRouter, coordinator, validator, chatService, messageService, logger)

	chatHandler := handler.NewChatHandler(chatService, messageService, logger)
	messageHandler := handler.NewMessageHandler(messageService, chatService, logger)
	presenceHandler := handler.NewPresenceHandler(coordinator, logger)
	healthHandler := handler.NewHealthHandler(redisClient)

	engine := router.Setup(cfg, hub, validator, chatHandler, messageHandler, presenceHandler, healthHandler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Broadcast delivery and the presence sweep run for the process
	// lifetime.
	go func() {
		if err := rtRouter.Run(ctx); err != nil {
			logger.Error("broadcast subscription failed", zap.Error(err))
		}
	}()
	go coordinator.Run(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("dm-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
