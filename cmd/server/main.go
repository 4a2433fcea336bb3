package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dressify/backend/internal/cache"
	"dressify/backend/internal/config"
	"dressify/backend/internal/httpapi"
	"dressify/backend/internal/metrics"
	"dressify/backend/internal/report"
	"dressify/backend/internal/service"
	"dressify/backend/internal/store"
	"dressify/backend/internal/store/memory"
	mongostore "dressify/backend/internal/store/mongodb"
	pgstore "dressify/backend/internal/store/postgres"
)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		if err := config.LoadEnvFile(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "env file: %v\n", err)
			os.Exit(1)
		}
	}
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}

	var statsCache cache.StatsCache = cache.NoopStatsCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop stats cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			statsCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("stats cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("stats cache: noop")
	}

	m := metrics.New()
	reports := report.NewEngine(statsCache, cfg.StatsCacheTTL, logger.Named("report"))
	svc := service.New(repo, reports, logger.Named("service"), m)
	api := httpapi.New(svc, logger.Named("http"), m, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("dressify backend listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openRepository picks postgres, then mongodb, then the in-memory store.
// A configured database that cannot be reached is fatal rather than
// silently falling back to memory.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, append(closers, pg.Close), nil
	case cfg.MongoURI != "":
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		if err := mg.Migrate(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		logger.Info("repository: mongodb", zap.String("database", cfg.MongoDatabase))
		return mg, append(closers, mg.Close), nil
	case cfg.SeedDemoData:
		logger.Info("repository: in-memory (seeded)")
		return memory.NewSeeded(), closers, nil
	default:
		logger.Info("repository: in-memory")
		return memory.New(), closers, nil
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func validateConfig(cfg config.Config) error {
	if cfg.DatabaseURL != "" && cfg.MongoURI != "" {
		return fmt.Errorf("set only one of DATABASE_URL and MONGO_URI")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}
	if cfg.MongoURI != "" && cfg.MongoDatabase == "" {
		return fmt.Errorf("MONGO_DATABASE must not be empty")
	}
	return nil
}
