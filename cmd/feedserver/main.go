package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/V4T54L/statusboard/internal/adapter/api"
	"github.com/V4T54L/statusboard/internal/adapter/broker"
	"github.com/V4T54L/statusboard/internal/adapter/hub"
	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/adapter/normalize"
	"github.com/V4T54L/statusboard/internal/pkg/config"
	"github.com/V4T54L/statusboard/internal/pkg/logger"
	"github.com/V4T54L/statusboard/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewFeedMetrics()

	// --- Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Event Store ---
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open event store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("event store ready", "backend", cfg.StoreBackend)

	// --- Fan-out and Ingestion ---
	broadcast := hub.New(logger, m)
	ingestUseCase := usecase.NewIngestEventUseCase(store, broadcast, normalize.New(), m, logger)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := broker.NewConsumer(broker.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), ingestUseCase, logger)
		go func() {
			logger.Info("starting kafka consumer", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
			consumer.Close()
		}()
	}

	// --- Feed Server ---
	feedServer := &http.Server{
		Addr:        cfg.FeedServerAddr,
		Handler:     api.NewRouter(cfg, logger, ingestUseCase, broadcast, store, m),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// Hijacked websocket connections are not tracked by Shutdown, so
		// sessions end through the request context instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("starting feed server", "addr", feedServer.Addr)
		if err := feedServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("feed server failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := feedServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("feed server shutdown failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
