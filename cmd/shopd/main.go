// Command shopd starts the MFC shop service.
//
// It extracts bilingual search terms from MyFigureCollection catalog pages
// (uploaded or fetched by URL), translates and edits Japanese search
// queries against the page dictionary, and hands the final query off to a
// marketplace search. Extracted terms are cached in Redis when it is
// reachable. Hand-off and extraction events are published to Kafka when it
// is enabled, and aggregated in-process otherwise; in-process stats are
// snapshotted to PostgreSQL when it is enabled.
//
// Usage:
//
//	go run ./cmd/shopd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfc-shop/mfc-shop/internal/analytics"
	"github.com/mfc-shop/mfc-shop/internal/analytics/store"
	"github.com/mfc-shop/mfc-shop/internal/api"
	apimw "github.com/mfc-shop/mfc-shop/internal/api/middleware"
	"github.com/mfc-shop/mfc-shop/internal/cache"
	"github.com/mfc-shop/mfc-shop/internal/fetch"
	"github.com/mfc-shop/mfc-shop/internal/merchant"
	"github.com/mfc-shop/mfc-shop/pkg/config"
	"github.com/mfc-shop/mfc-shop/pkg/health"
	"github.com/mfc-shop/mfc-shop/pkg/kafka"
	"github.com/mfc-shop/mfc-shop/pkg/logger"
	"github.com/mfc-shop/mfc-shop/pkg/metrics"
	"github.com/mfc-shop/mfc-shop/pkg/postgres"
	pkgredis "github.com/mfc-shop/mfc-shop/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting shop service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	registry := merchant.Default(cfg.Merchants)
	fetcher := fetch.New(cfg.Fetch, m)
	checker := health.NewChecker()
	checker.Register("merchants", health.NonEmptyCheck("merchants", registry.Len))
	checker.Register("catalog", fetcher.HealthCheck)

	var termCache *cache.TermCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, term caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		termCache = cache.New(redisClient, cfg.Redis, m)
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
		slog.Info("term cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	// Events go to Kafka for the analytics service, or straight into a
	// local aggregator.
	aggregator := analytics.NewAggregator(nil, cfg.Analytics.TopN)
	var sink analytics.Sink = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ShopEvents)
		defer producer.Close()
		sink = producer
		checker.Register("kafka", health.PingCheck(producer.Ping, false))
		slog.Info("publishing shop events", "topic", cfg.Kafka.Topics.ShopEvents)
	}
	collector := analytics.NewCollector(sink, cfg.Analytics.BufferSize, 0, 0)
	collector.Start(ctx)
	checker.Register("analytics", health.BacklogCheck(collector.BufferLen, collector.BufferCap(), 0.8))

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled && !cfg.Kafka.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		st := store.New(db)
		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot table", "error", err)
			os.Exit(1)
		}
		st.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		snapshots = st
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	trusted, err := apimw.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		slog.Error("invalid rate limit config", "error", err)
		os.Exit(1)
	}
	limiter := apimw.NewLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	limiter.StartCleanup(ctx, time.Minute)

	h := api.NewHandler(registry, api.Options{
		Pages:        fetcher,
		Cache:        termCache,
		Tracker:      collector,
		Metrics:      m,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	var stats *analytics.Handler
	if !cfg.Kafka.Enabled {
		stats = analytics.NewHandler(aggregator, snapshots)
	}
	chain := api.NewRouter(h, stats, checker, api.RouterConfig{
		CORS:           cfg.CORS,
		Limiter:        limiter,
		TrustedProxies: trusted,
		Metrics:        m,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Handlers stop tracking before the collector is closed.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("shop service listening", "addr", server.Addr, "merchants", registry.Len())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-drained
	collector.Close()
	slog.Info("shop service stopped")
}
