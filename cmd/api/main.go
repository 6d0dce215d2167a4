package main

import (
	"context"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/applytrack/applytrack/internal/app"
	"github.com/applytrack/applytrack/internal/auth"
	"github.com/applytrack/applytrack/internal/config"
	"github.com/applytrack/applytrack/internal/database"
	"github.com/applytrack/applytrack/internal/handlers"
	"github.com/applytrack/applytrack/internal/services"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}
	logger := app.NewLogger(cfg.Log)

	db, err := database.Connect(cfg.DB.DSN)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		return
	}

	// Core engine wiring: all mutation flows through Resolver/Lifecycle.
	normalizer := services.NewNormalizer()
	lifecycle := services.NewLifecycle(db)
	resolver := services.NewResolver(db, lifecycle)
	syncService := services.NewSyncService(normalizer, resolver, logger)
	applicationService := services.NewApplicationService(db, normalizer, resolver, lifecycle)
	statsService := services.NewStatsService(db)

	ctx := context.Background()

	// Optional Gmail watcher: an external-collaborator adapter that turns
	// inbox updates into email_sync batches.
	if cfg.Gmail.Enabled {
		llmService, err := services.NewLLMService(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.Model)
		if err != nil {
			logger.Warn("llm disabled", "error", err)
		} else if httpClient, err := auth.GmailClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile); err != nil {
			logger.Warn("gmail disabled", "error", err)
		} else if gmailService, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient)); err != nil {
			logger.Warn("gmail disabled", "error", err)
		} else {
			emailService := services.NewEmailService(
				db, llmService, gmailService, syncService, logger,
				cfg.Gmail.WatchOwnerID, cfg.Gmail.PollInterval,
			)
			emailService.StartWatcher(ctx)
			logger.Info("email watcher started", "owner", cfg.Gmail.WatchOwnerID)
		}
	}

	applicationHandler := handlers.NewApplicationHandler(applicationService)
	syncHandler := handlers.NewSyncHandler(syncService)
	statsHandler := handlers.NewStatsHandler(statsService)
	calendarHandler := handlers.NewCalendarHandler(lifecycle)

	r := gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"}
	r.Use(cors.New(corsConfig))

	api := r.Group("/api/v1")
	{
		api.GET("/health", handlers.HealthCheck)

		authed := api.Group("", handlers.OwnerRequired())
		{
			authed.POST("/applications", applicationHandler.Create)
			authed.GET("/applications", applicationHandler.List)
			authed.PUT("/applications/:id", applicationHandler.Update)
			authed.DELETE("/applications/:id", applicationHandler.Delete)

			authed.POST("/sync", syncHandler.Run)
			authed.GET("/stats", statsHandler.Get)
			authed.GET("/calendar", calendarHandler.List)
		}
	}

	logger.Info("server starting", "addr", cfg.Server.Addr())
	if err := r.Run(cfg.Server.Addr()); err != nil {
		logger.Error("server failed", "error", err)
	}
}
