package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/config"
	"github.com/acadnotify/notify-engine/internal/delivery"
	"github.com/acadnotify/notify-engine/internal/handler"
	"github.com/acadnotify/notify-engine/internal/infra/postgresql"
	"github.com/acadnotify/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/acadnotify/notify-engine/internal/infra/redis"
	"github.com/acadnotify/notify-engine/internal/observability"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
	"github.com/acadnotify/notify-engine/internal/service"
	"github.com/acadnotify/notify-engine/internal/template"
	"github.com/acadnotify/notify-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerPrefetch, logger)

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	deadLetterRepo := repository.NewGormDeadLetterRepo(db)

	mailTransport, err := delivery.NewMailGatewayTransport(cfg.MailGatewayURL)
	if err != nil {
		logger.Fatal("mail gateway initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	executor, err := delivery.NewExecutor(mailTransport, delivery.ExecutorConfig{
		BulkheadSize:    cfg.BulkheadSize,
		BulkheadMaxWait: cfg.BulkheadMaxWait(),
		AttemptTimeout:  cfg.AttemptTimeout(),
		MaxAttempts:     cfg.MaxAttempts,
		Breaker: delivery.BreakerConfig{
			WindowSize:       cfg.BreakerWindowSize,
			FailureThreshold: cfg.BreakerFailureThreshold,
			MinimumSamples:   cfg.BreakerMinimumSamples,
			WaitDuration:     cfg.BreakerWait(),
			PermittedProbes:  cfg.BreakerPermittedProbes,
			OnStateChange:    metrics.SetBreakerState,
		},
	})
	if err != nil {
		logger.Fatal("delivery executor initialization failed", zap.Error(err))
	}

	deadLetters, err := service.NewDeadLetterService(deadLetterRepo, notificationRepo, publisher, logger)
	if err != nil {
		logger.Fatal("dead-letter service initialization failed", zap.Error(err))
	}

	orchestrator, err := service.NewOrchestrator(
		notificationRepo,
		attemptRepo,
		template.NewRenderer(),
		executor,
		deadLetters,
		logger,
	)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}

	worker, err := service.NewWorkerService(consumer, orchestrator, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker service initialization failed", zap.Error(err))
	}

	orchestrator.SetMetrics(metrics)
	deadLetters.SetMetrics(metrics)
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	go func() {
		logger.Info("worker metrics endpoint started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutting down worker")
	if err := app.Shutdown(); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
