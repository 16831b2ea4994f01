package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/acadnotify/notify-engine/internal/config"
	"github.com/acadnotify/notify-engine/internal/handler"
	"github.com/acadnotify/notify-engine/internal/infra/postgresql"
	"github.com/acadnotify/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/acadnotify/notify-engine/internal/infra/redis"
	"github.com/acadnotify/notify-engine/internal/observability"
	"github.com/acadnotify/notify-engine/internal/queue"
	"github.com/acadnotify/notify-engine/internal/repository"
	"github.com/acadnotify/notify-engine/internal/service"
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

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	deadLetterRepo := repository.NewGormDeadLetterRepo(db)

	history, err := service.NewHistoryService(notificationRepo, attemptRepo, deadLetterRepo, publisher, logger)
	if err != nil {
		logger.Fatal("history service initialization failed", zap.Error(err))
	}

	deadLetters, err := service.NewDeadLetterService(deadLetterRepo, notificationRepo, publisher, logger)
	if err != nil {
		logger.Fatal("dead-letter service initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	deadLetters.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, history, deadLetters, publisher); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		logger.Info("api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("api server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api")
	if err := app.Shutdown(); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
}
