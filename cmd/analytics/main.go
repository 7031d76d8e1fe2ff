// Command analytics starts the standalone shop analytics service.
//
// It consumes hand-off and extraction events from Kafka, aggregates them in
// memory (hand-offs per merchant, top queries, match rate, extraction
// latency percentiles, cache hit rate), snapshots the aggregate to
// PostgreSQL when it is enabled, and exposes the stats over HTTP for
// dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"github.com/mfc-shop/mfc-shop/pkg/config"
	"github.com/mfc-shop/mfc-shop/pkg/health"
	"github.com/mfc-shop/mfc-shop/pkg/kafka"
	"github.com/mfc-shop/mfc-shop/pkg/logger"
	"github.com/mfc-shop/mfc-shop/pkg/middleware"
	"github.com/mfc-shop/mfc-shop/pkg/postgres"
)

// snapshotRetention bounds how long saved snapshots are kept.
const snapshotRetention = 30 * 24 * time.Hour

// main boots the analytics service: a Kafka consumer feeding the
// aggregator, optional PostgreSQL snapshots, a health checker and the HTTP
// API. Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator(nil, cfg.Analytics.TopN)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ShopEvents, analytics.HandleEvent(aggregator))
	defer consumer.Close()
	aggregator.SetConsumer(consumer)

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.ShopEvents)

	checker := health.NewChecker()
	checker.Register("kafka", health.PingCheck(consumer.Ping, false))

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
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
		if n, err := st.Prune(ctx, snapshotRetention); err != nil {
			slog.Warn("snapshot pruning failed", "error", err)
		} else if n > 0 {
			slog.Info("old snapshots pruned", "deleted", n)
		}
		st.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		snapshots = st
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	analyticsHandler := analytics.NewHandler(aggregator, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
