package main

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/chat-service/internal/cache"
	"github.com/dealbridge/chat-service/internal/config"
	"github.com/dealbridge/chat-service/internal/handler"
	"github.com/dealbridge/chat-service/internal/hub"
	"github.com/dealbridge/chat-service/internal/realtime"
	"github.com/dealbridge/chat-service/internal/repository"
	"github.com/dealbridge/chat-service/internal/service"
	"github.com/dealbridge/chat-service/pkg/database"
	pkglog "github.com/dealbridge/chat-service/pkg/log"
	"github.com/dealbridge/chat-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "chat-service",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &repository.RoomModel{}, &repository.MessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Initialize unread badge cache
	unreadCache, err := cache.NewUnreadCache(cfg.Cache.Driver, cfg.Cache.Redis, cfg.Cache.Prefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect unread cache")
	}
	defer unreadCache.Close()
	logger.Info().Str("driver", cfg.Cache.Driver).Msg("unread cache connected")

	// Initialize event bus
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect event bus")
	}
	defer bus.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("event bus connected")

	// Initialize service and realtime adapter
	chatService := service.NewChatService(roomRepo, messageRepo, unreadCache, bus)
	rt := realtime.NewAdapter(bus, chatService, chatService)

	// Initialize websocket hub
	h := hub.NewHub(cfg.WebSocket)
	go h.Run()

	// Initialize handlers
	wsHandler := handler.NewWSHandler(h, chatService, rt, cfg.WebSocket)
	httpHandler := handler.NewHandler(chatService)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Register routes
	httpHandler.RegisterRoutes(r, wsHandler)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).Msg("chat-service starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
