// Package main is the Residency Hub event worker.
//
// The worker consumes assessment events from Kafka, drops the cached
// progress of the affected resident and writes an audit line per event. It
// lets API replicas that do not share an in-process bus keep the Redis
// progress cache coherent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rms-hub/residency-hub/config"
	"github.com/rms-hub/residency-hub/internal/application/eventhandler"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/infrastructure/messaging"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/redis"
	"github.com/rms-hub/residency-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	log := logger.New(opts).With(logger.String("service", cfg.App.Name+"-worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting Residency Hub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("topic", cfg.Kafka.Topic),
		logger.String("group_id", cfg.Kafka.GroupID),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	handlers := []shared.EventHandler{eventhandler.NewAuditLogHandler(log).Handle}

	if cfg.Redis.Disabled {
		log.Warn("Redis disabled, events are only audited")
	} else {
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer cache.Close()

		progress := redis.NewProgressCache(cache, cfg.Redis.ProgressTTL, log)
		handlers = append(handlers, eventhandler.NewOnAssessmentChangedHandler(progress, log, 0).Handle)
		log.Info("Redis connection established")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CONSUME UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	consumer := messaging.NewKafkaConsumer(messaging.KafkaConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, log, handlers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("stopping consumer...")
		return consumer.Close()
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}
