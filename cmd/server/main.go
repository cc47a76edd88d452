package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
	httpDelivery "github.com/pricelens/backend/internal/delivery/http"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/postgres"
	"github.com/pricelens/backend/internal/usecase"
	"github.com/pricelens/backend/pkg/logger"
)

const (
	serviceName     = "pricelens-backend"
	shutdownTimeout = 10 * time.Second
	redisKeyPrefix  = "pricelens:"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(serviceName, cfg.Server.Environment, cfg.Log.Level)
	defer logger.Sync()
	log := logger.S()

	log.Infow("starting PriceLens backend",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
		"cache", cfg.Cache.Type)

	// Initialize infrastructure dependencies
	store, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	}, logger.L())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer store.Close()

	priceCache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatalw("failed to init cache", "error", err)
	}
	defer closeCache()
	log.Infow("cache ready", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)

	// Initialize usecase layer
	priceService := usecase.NewPriceService(
		priceCache,
		store,
		usecase.PriceServiceConfig{
			CacheTTL:           cfg.Cache.TTL,
			CandidateLimit:     cfg.Matching.CandidateLimit,
			BatchConcurrency:   cfg.Matching.BatchConcurrency,
			EnableDebugLogging: cfg.Matching.EnableDebugLogging,
		},
		logger.L(),
	)

	log.Infow("matching configured",
		"candidate_limit", cfg.Matching.CandidateLimit,
		"batch_concurrency", cfg.Matching.BatchConcurrency,
		"debug", cfg.Matching.EnableDebugLogging)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(priceService, store, store, logger.L())
	router := httpDelivery.SetupRouter(cfg, handler, logger.L())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
}

// newCache builds the configured cache backend and its release func
func newCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, func(), error) {
	switch cfg.Type {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() {
			if err := rc.Close(); err != nil {
				logger.L().Warn("cache.close_failed", zap.Error(err))
			}
		}, nil
	default:
		mc := cache.NewMemoryCache(0)
		return mc, func() { _ = mc.Close() }, nil
	}
}
