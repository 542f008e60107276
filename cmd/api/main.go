// Package main is the entry point of the Residency Hub REST API.
//
// Startup order: config, logging, tracing, store (postgres, sqlite or
// memory), optional seed, optional Redis progress cache, event bus with its
// subscribers, application handlers, HTTP server. SIGINT/SIGTERM trigger a
// graceful shutdown in reverse order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rms-hub/residency-hub/config"
	"github.com/rms-hub/residency-hub/internal/application/command"
	"github.com/rms-hub/residency-hub/internal/application/eventhandler"
	"github.com/rms-hub/residency-hub/internal/application/query"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/infrastructure/messaging"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/gormstore"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/memory"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/postgres"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/redis"
	"github.com/rms-hub/residency-hub/internal/infrastructure/persistence/seed"
	httpserver "github.com/rms-hub/residency-hub/internal/interface/http"
	"github.com/rms-hub/residency-hub/internal/interface/http/handlers"
	"github.com/rms-hub/residency-hub/internal/observability"
	"github.com/rms-hub/residency-hub/pkg/logger"
	"github.com/rms-hub/residency-hub/pkg/timeutil"
)

// programProgressWorkers bounds concurrent resident computations for the
// program overview.
const programProgressWorkers = 4

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting Residency Hub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("db_driver", cfg.Database.Driver),
	)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store...")
		if err := store.Close(); err != nil {
			log.Warn("store close failed", logger.Err(err))
		}
	}()

	if cfg.Database.Seed {
		if err := store.Seed(ctx, seed.Default()); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		log.Info("reference dataset loaded")
	}
	repos := store.Repositories()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(store))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS PROGRESS CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var progressCache *redis.ProgressCache
	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureProgressCache, "") {
		cache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, progress cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			progressCache = redis.NewProgressCache(cache, cfg.Redis.ProgressTTL, log)
			health.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = true
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	// The invalidator subscribes synchronously: a write is not acknowledged
	// until the resident's snapshot is gone.
	if progressCache != nil {
		invalidator := eventhandler.NewOnAssessmentChangedHandler(progressCache, log, 0)
		if err := invalidator.Subscribe(bus); err != nil {
			return fmt.Errorf("failed to subscribe cache invalidation: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureEventStreaming, "") {
		publisher := messaging.NewKafkaPublisher(messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, log)
		defer publisher.Close()
		if err := bus.SubscribeAll(publisher.Handle); err != nil {
			return fmt.Errorf("failed to subscribe kafka publisher: %w", err)
		}
		log.Info("streaming assessment events",
			logger.String("topic", cfg.Kafka.Topic), logger.Int("brokers", len(cfg.Kafka.Brokers)))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	source := query.Source{
		Residents:    repos.Residents,
		EPAs:         repos.EPAs,
		Requirements: repos.Requirements,
		Assessments:  repos.Assessments,
	}
	catalog := query.Catalog{
		EPAs:      repos.EPAs,
		Residents: repos.Residents,
		Faculty:   repos.Faculty,
		Sites:     repos.Sites,
	}

	var residentCache query.ProgressCache
	if progressCache != nil {
		residentCache = &rolloutCache{cache: progressCache, flags: cfg.Features}
	}

	deps := command.Deps{
		Assessments: repos.Assessments,
		Residents:   repos.Residents,
		Faculty:     repos.Faculty,
		EPAs:        repos.EPAs,
		Sites:       repos.Sites,
		Publisher:   bus,
		Clock:       timeutil.SystemClock{},
		Logger:      log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.TrustedProxies = cfg.HTTP.TrustedProxies
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys
	httpConfig.ProgressETag = cfg.Features.IsEnabled(config.FeatureProgressETag, "")
	httpConfig.ProgramProgress = cfg.Features.IsEnabled(config.FeatureProgramProgress, "")

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Catalog:          query.NewCatalogHandler(catalog),
		Assessments:      query.NewAssessmentsHandler(repos.Assessments, catalog),
		ResidentProgress: query.NewGetResidentProgressHandler(source, residentCache, log),
		ProgramProgress:  query.NewGetProgramProgressHandler(source, programProgressWorkers),
		Users:            query.NewUsersHandler(catalog),
		Submit:           command.NewSubmitAssessmentHandler(deps, command.NewValidator()),
		Acknowledge:      command.NewAcknowledgeAssessmentHandler(deps),
		Delete:           command.NewDeleteAssessmentHandler(deps),
		Logger:           log,
		HealthChecker:    health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. RUN AND GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.String("address", server.Address()))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		shutdownErr = err
	}
	// In-flight events reach their subscribers before the publisher closes.
	bus.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", logger.Err(err))
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug && opts.Level > logger.LevelDebug {
		opts.Level = logger.LevelDebug
	}
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}

// openStore opens the backend selected by DB_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (persistence.Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		log.Info("connecting to database...")
		pgConfig := postgres.DefaultConfig(cfg.Database.URL)
		pgConfig.MaxConns = int32(cfg.Database.MaxConns)
		pgConfig.MinConns = int32(cfg.Database.MinConns)
		pgConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		conn, err := postgres.NewConnection(ctx, pgConfig, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if status, err := migrator.Status(ctx); err != nil {
			log.Warn("failed to get migration status", logger.Err(err))
		} else {
			applied := 0
			for _, m := range status {
				if m.IsApplied {
					applied++
				}
			}
			log.Info("migrations completed", logger.Int("applied", applied), logger.Int("total", len(status)))
		}
		return conn, nil

	case config.DriverSQLite:
		store, err := gormstore.Open(cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		if cfg.Database.LogQueries {
			store.EnableQueryLog()
		}
		log.Info("sqlite store opened", logger.String("path", cfg.Database.SQLitePath))
		return store, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Addr = c.Addr()
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

// rolloutCache serves cached progress only to residents inside the
// progress_cache rollout. Invalidation bypasses it and always runs.
type rolloutCache struct {
	cache *redis.ProgressCache
	flags *config.FeatureFlags
}

func (c *rolloutCache) GetProgress(ctx context.Context, id shared.ResidentID) ([]byte, int64, bool) {
	if !c.flags.IsEnabled(config.FeatureProgressCache, id.String()) {
		return nil, -1, false
	}
	return c.cache.GetProgress(ctx, id)
}

func (c *rolloutCache) PutProgress(ctx context.Context, id shared.ResidentID, version int64, payload []byte) {
	if c.flags.IsEnabled(config.FeatureProgressCache, id.String()) {
		c.cache.PutProgress(ctx, id, version, payload)
	}
}
