// Package main is the entry point for the trending tags API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/trendtags/internal/api"
	"github.com/onnwee/trendtags/internal/cache"
	"github.com/onnwee/trendtags/internal/config"
	"github.com/onnwee/trendtags/internal/db"
	"github.com/onnwee/trendtags/internal/health"
	"github.com/onnwee/trendtags/internal/middleware"
	"github.com/onnwee/trendtags/internal/tag"
	"github.com/onnwee/trendtags/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Trending Tags API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		summary = append(summary, k, v)
	}
	logger.Info("configuration loaded", summary...)

	tp, err := tracing.NewProvider(ctx, cfg.TracingConfig(version), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "database", sqlDB.Close)

	if cfg.DBAutoMigrate {
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			return err
		}
		logger.Info("post store schema ensured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cacheMetrics := cache.NewMetrics()
	if err := cacheMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	shared, err := newSharedStores(cfg, logger)
	if err != nil {
		return err
	}
	defer shared.close()

	resultCache, err := cache.New(cache.Options{
		MaxEntries:   cfg.CacheMaxEntries,
		SingleFlight: cfg.CacheSingleFlight,
		Remote:       shared.remote,
		Metrics:      cacheMetrics,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create result cache: %w", err)
	}
	stopSweep := resultCache.StartEvictionTimer(cfg.CacheSweepInterval)
	defer stopSweep()

	service := tag.NewService(tag.NewEngine(tag.NewPostgresStore(sqlDB)), resultCache)

	handler := newRouter(routerDeps{
		Tags: api.NewTagHandlers(service, logger),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(sqlDB),
			RedisChecker: shared.checker,
		}),
		Metrics:        httpMetrics,
		Gatherer:       registry,
		RateLimitStore: shared.rateLimit,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitRequests,
			WindowDuration:    cfg.RateLimitWindow,
		},
		ServiceName: config.ServiceName,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// sharedStores holds the Redis-backed components, or their single-process
// fallbacks when REDIS_URL is unset.
type sharedStores struct {
	remote    cache.Remote
	rateLimit middleware.RateLimitStore
	checker   api.HealthChecker
	close     func()
}

func newSharedStores(cfg *config.Config, logger *slog.Logger) (*sharedStores, error) {
	if cfg.RedisURL == "" {
		store := middleware.NewInMemoryRateLimitStore(clockwork.NewRealClock())
		ticker := time.NewTicker(cfg.RateLimitWindow)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-ticker.C:
					store.Cleanup()
				case <-done:
					ticker.Stop()
					return
				}
			}
		}()
		logger.Info("redis not configured, using in-process cache and rate limits")
		return &sharedStores{rateLimit: store, close: func() { close(done) }}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	return &sharedStores{
		remote:    cache.NewRedisRemote(rdb, cache.DefaultRedisPrefix),
		rateLimit: middleware.NewRedisRateLimitStore(rdb),
		checker:   health.NewRedisChecker(rdb),
		close:     func() { closeLogged(logger, "redis", rdb.Close) },
	}, nil
}

func closeLogged(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("failed to close "+name, "error", err)
	}
}
