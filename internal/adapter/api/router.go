package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/V4T54L/statusboard/internal/adapter/api/handler"
	"github.com/V4T54L/statusboard/internal/adapter/api/middleware"
	"github.com/V4T54L/statusboard/internal/adapter/hub"
	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/pkg/config"
)

// NewRouter creates and configures the HTTP router for the feed server.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	ingester handler.Ingester,
	broadcast *hub.Hub,
	snapshots handler.SnapshotSource,
	m *metrics.FeedMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	var limiter *rate.Limiter
	if cfg.IngestRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.IngestRateLimit), cfg.IngestRateBurst)
	}

	ingestHandler := handler.NewIngestHandler(ingester, logger, cfg.MaxEventSize, m, limiter)
	uploadHandler := handler.NewUploadHandler(ingester, logger, cfg.MaxUploadSize)

	var stats handler.StatsProvider
	if m != nil {
		stats = m
	}
	feedHandler := handler.NewFeedHandler(broadcast, snapshots, stats, m, handler.SessionOptions{
		SnapshotSize: cfg.SnapshotSize,
		QueueSize:    cfg.SubscriberQueueSize,
	}, logger)

	r.Method(http.MethodPost, "/ingest", ingestHandler)
	r.Method(http.MethodPost, "/upload", uploadHandler)
	r.Method(http.MethodGet, "/ws", feedHandler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
