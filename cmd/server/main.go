// Package main provides the API server entry point for the Estrella messaging service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/estrella/internal/api"
	"github.com/estrella/internal/config"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/service"
	"github.com/estrella/internal/storage"
	"github.com/estrella/internal/worker"
)

func main() {
	fmt.Println("Estrella API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	if cfg.Server.AutoMigrate {
		logger.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(cfg.Database.Postgres.URL()); err != nil {
			logger.WithError(err).Fatal("Failed to run Postgres migrations")
		}
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	healthChecks := map[string]api.HealthChecker{"postgres": postgres}

	// Select the quota counter backend
	var quotaStore service.QuotaStore
	switch cfg.Quota.Backend {
	case config.BackendRedis:
		redisDB, err := storage.NewRedisDB(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisDB.Close()
		quotaStore = storage.NewRedisQuotaStore(redisDB.Client())
		healthChecks["redis"] = redisDB
	default:
		quotaStore = storage.NewQuotaRepository(postgres)
	}

	// The activity log is optional; without ClickHouse events are not recorded
	var activity service.ActivityRecorder
	var activityLog service.ActivityReader
	var activityWorker *worker.ActivityWorker
	if cfg.Database.ClickHouse.Enabled() {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		if cfg.Server.AutoMigrate {
			migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err := storage.RunClickHouseMigrations(migrateCtx, clickhouse)
			cancel()
			if err != nil {
				logger.WithError(err).Fatal("Failed to run ClickHouse migrations")
			}
		}

		activityRepo := storage.NewActivityRepository(clickhouse)
		activityWorker, err = worker.NewActivityWorker(&worker.ActivityWorkerConfig{Sink: activityRepo})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create activity worker")
		}
		if err := activityWorker.Start(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to start activity worker")
		}

		activity = activityWorker
		activityLog = activityRepo
		healthChecks["clickhouse"] = clickhouse
	} else {
		logger.Warn("ClickHouse not configured - activity log disabled")
	}

	logger.WithField("quota_backend", cfg.Quota.Backend).Info("Database connections established")

	// Initialize repositories
	userRepo := storage.NewUserRepository(postgres)
	conversationRepo := storage.NewConversationRepository(postgres)
	messageRepo := storage.NewMessageRepository(postgres)
	beerRepo := storage.NewBeerRepository(postgres)
	promoRepo := storage.NewPromoRepository(postgres)

	// Initialize services
	logger.Info("Initializing services...")

	ledger, err := service.NewQuotaLedger(quotaStore, &cfg.Quota)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create quota ledger")
	}

	userService := service.NewUserService(userRepo, ledger, cfg.Levels.Thresholds(), activity, activityLog)
	messagingService := service.NewMessagingService(&service.MessagingServiceConfig{
		Users:         userRepo,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Beers:         beerRepo,
		Ledger:        ledger,
		BeerBonus:     cfg.Quota.BeerBonus,
		Activity:      activity,
	})
	promoService := service.NewPromoService(promoRepo, userRepo, ledger, cfg.Quota.PromoCodes, activity)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, userService, messagingService, promoService, healthChecks)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Flush buffered activity events before the ClickHouse connection closes
	if activityWorker != nil {
		if err := activityWorker.Stop(ctx); err != nil {
			logger.WithError(err).Warn("Activity worker did not stop cleanly")
		}
		flushed, dropped := activityWorker.Stats()
		logger.WithFields(map[string]interface{}{
			"flushed": flushed,
			"dropped": dropped,
		}).Info("Activity worker stopped")
	}

	logger.Info("Server exited")
}
