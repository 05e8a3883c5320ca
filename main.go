package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/edplatform/grading-service/internal/config"
	"github.com/edplatform/grading-service/internal/events"
	"github.com/edplatform/grading-service/internal/handlers"
	"github.com/edplatform/grading-service/internal/repositories/casdoor"
	"github.com/edplatform/grading-service/internal/repositories/postgres"
	"github.com/edplatform/grading-service/internal/scheduler"
	"github.com/edplatform/grading-service/internal/services"
	"github.com/edplatform/grading-service/internal/validator"
	"github.com/edplatform/grading-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Error("failed to initialize redis", "error", err)
			os.Exit(1)
		}
	}

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	})
	if err := repoManager.Initialize(); err != nil {
		logger.Error("failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	repo := repoManager.GetRepository()

	var publisher events.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err = events.NewKafkaEventPublisher(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Error("failed to initialize kafka publisher", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = events.NewMockEventPublisher(logger)
		logger.Warn("kafka disabled, events will only be logged")
	}

	v := validator.New()
	serviceManager := services.NewServiceManager(db, repo, logger, v, nil, publisher)
	ctx := context.Background()
	if err := serviceManager.Initialize(ctx); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	timeoutScanner := scheduler.NewTimeoutScanner(serviceManager.Attempt(), logger, cfg.TimeoutScanSchedule)
	if err := timeoutScanner.Start(); err != nil {
		logger.Error("failed to start timeout scanner", "error", err)
		os.Exit(1)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)

	handlerManager := handlers.NewHandlerManager(serviceManager, v, logger, cfg.Casdoor, repo.User())
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting grading service", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down grading service")
	timeoutScanner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := serviceManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("service shutdown error", "error", err)
	}

	logger.Info("grading service stopped")
}
