package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/meetsy/backend/internal/api"
	"github.com/meetsy/backend/internal/auth"
	"github.com/meetsy/backend/internal/config"
	"github.com/meetsy/backend/internal/domain"
	"github.com/meetsy/backend/internal/fcm"
	"github.com/meetsy/backend/internal/repository"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting Meetsy API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database
	ctx := context.Background()
	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database")

	// Initialize dependencies
	repo := repository.NewPostgresRepository(db, logger)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	// Initialize Firebase
	fcmClient, err := fcm.NewClient(ctx, logger, cfg.FCM.CredentialsFile)
	if err != nil {
		logger.Warn("Failed to initialize Firebase client - push notifications will be disabled", zap.Error(err))
		fcmClient = nil
	} else {
		logger.Info("Firebase client initialized")
	}

	// Initialize services
	authService := domain.NewAuthService(repo, jwtManager)
	notificationService := domain.NewNotificationService(repo, fcmClient, logger)
	connectionService := domain.NewConnectionService(repo, repo, notificationService, logger)
	meetupService := domain.NewMeetupService(connectionService, repo, notificationService, logger)

	// Initialize feed manager
	viewLoader := api.NewServiceViewLoader(connectionService, meetupService)
	feedManager := api.NewFeedManager(viewLoader, logger)
	go feedManager.Run()

	// Initialize handlers
	authHandler := api.NewAuthHandler(authService, logger)
	connectionHandler := api.NewConnectionHandler(connectionService, feedManager, logger)
	messageHandler := api.NewMessageHandler(meetupService, connectionService, feedManager, logger)
	meetupHandler := api.NewMeetupHandler(meetupService, connectionService, feedManager, logger)
	activityHandler := api.NewActivityHandler(connectionService, feedManager, logger)
	notificationHandler := api.NewNotificationHandler(notificationService, logger)
	healthHandler := api.NewHealthHandler()

	// Initialize router
	router := api.NewRouter(authHandler, connectionHandler, messageHandler, meetupHandler, activityHandler, notificationHandler, healthHandler, jwtManager, cfg, logger)
	r := router.Setup()

	// Start archive worker
	archiveCtx, archiveCancel := context.WithCancel(ctx)
	repo.StartArchiveWorker(archiveCtx, cfg.Meetup.ArchiveInterval, cfg.Meetup.MessageRetention)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel archive worker
	archiveCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
