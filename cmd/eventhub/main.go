package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"eventhub/internal/app/publish"
	"eventhub/internal/config"
	"eventhub/internal/consumer"
	"eventhub/internal/dedupe"
	"eventhub/internal/domain/event"
	handler_events "eventhub/internal/handler/events"
	events_http "eventhub/internal/handler/http/events"
	"eventhub/internal/infrastructure/database"
	kafka_infra "eventhub/internal/infrastructure/kafka"
	redis_infra "eventhub/internal/infrastructure/redis"
	"eventhub/internal/monitor"
	"eventhub/internal/outbox"
	"eventhub/internal/repository/outbox_repo/postgres"
	"eventhub/internal/router"
)

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)

	return zapConfig.Build()
}

func runMigrations(path, dsn string, logger *zap.Logger) error {
	m, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")
	return nil
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv(config.PathEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(finish(appLogger, run(cfg, appLogger)))
}

// finish logs how run ended, flushes the logger and returns the exit code.
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("eventhub terminated with error", zap.Error(err))
		code = 1
	} else {
		logger.Info("Application gracefully shut down.")
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	appLogger.Info("eventhub starting...", zap.String("version", cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Waiting for database to be available...")
	dbConfig := cfg.GetDatabaseConfig()
	db, err := database.ConnectWithRetry(ctx, func(ctx context.Context) (*sql.DB, error) {
		return database.NewPostgresDB(ctx, dbConfig)
	}, cfg.DBConfig.ConnectRetries, 5*time.Second, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := runMigrations(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString(), appLogger); err != nil {
		return err
	}

	topics := event.DefaultTopics()
	adminCtx, cancelAdmin := context.WithTimeout(ctx, 10*time.Second)
	err = kafka_infra.EnsureTopics(adminCtx, cfg.Kafka.Brokers, topics.Topics(), kafka_infra.TopicSpec{
		Partitions:        cfg.Kafka.TopicPartitions,
		ReplicationFactor: cfg.Kafka.ReplicationFactor,
	}, appLogger.With(zap.String("component", "KafkaAdmin")))
	cancelAdmin()
	if err != nil {
		return fmt.Errorf("failed to ensure Kafka topics: %w", err)
	}

	outboxRepository := postgres.NewOutboxRepository(db)

	publishService := publish.NewService(
		outboxRepository,
		topics,
		appLogger.With(zap.String("component", "PublishService")),
	)
	outboxMonitor := monitor.New(outboxRepository, cfg.Outbox.MaxRetryAttempts)

	kafkaProducer := kafka_infra.NewProducer(kafka_infra.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, appLogger.With(zap.String("component", "KafkaProducer")))
	defer kafkaProducer.Close()

	outboxPublisher := outbox.NewPublisher(
		outboxRepository,
		kafkaProducer,
		outbox.Config{
			BatchSize:        cfg.Outbox.BatchSize,
			MaxRetryAttempts: cfg.Outbox.MaxRetryAttempts,
		},
		appLogger.With(zap.String("component", "OutboxPublisher")),
	)
	outboxRunner := outbox.NewRunner(outboxPublisher, outbox.RunnerConfig{
		StartupDelay:    cfg.Outbox.StartupDelay,
		Interval:        cfg.Outbox.Interval,
		ErrorRetryDelay: cfg.Outbox.ErrorRetryDelay,
	}, appLogger.With(zap.String("component", "OutboxRunner")))

	var wrap handler_events.Wrapper
	if cfg.Redis.Enabled {
		redisClient, err := redis_infra.NewClient(ctx, redis_infra.Config{Addr: cfg.Redis.Addr})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		guard := dedupe.NewGuard(redisClient, cfg.Redis.DedupeTTL, appLogger.With(zap.String("component", "DedupeGuard")))
		wrap = guard.Wrap
		appLogger.Info("Redis duplicate-delivery guard enabled", zap.String("addr", cfg.Redis.Addr))
	}

	routerBuilder := router.NewBuilder(appLogger.With(zap.String("component", "EventRouter")))
	if err := handler_events.Register(routerBuilder, publishService, wrap, appLogger.With(zap.String("component", "EventHandlers"))); err != nil {
		return err
	}
	eventRouter := routerBuilder.Build()

	eventConsumer := consumer.New(
		kafka_infra.NewSubscriber(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, appLogger.With(zap.String("component", "KafkaSubscriber"))),
		eventRouter,
		appLogger.With(zap.String("component", "EventConsumer")),
	)

	httpRouter := chi.NewRouter()
	httpRouter.Use(middleware.RequestID)
	httpRouter.Use(middleware.Logger)
	httpRouter.Use(middleware.Recoverer)
	events_http.RegisterRoutes(httpRouter, publishService, outboxMonitor, appLogger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return outboxRunner.Run(gctx)
	})

	g.Go(func() error {
		return eventConsumer.StartConsuming(gctx, topics.Topics())
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down application...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
			return err
		}
		appLogger.Info("HTTP server gracefully shut down.")
		return nil
	})

	return g.Wait()
}
