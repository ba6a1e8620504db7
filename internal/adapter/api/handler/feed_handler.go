package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/V4T54L/statusboard/internal/adapter/hub"
	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/domain"
)

// FeedHandler upgrades observer connections and runs one Session each.
type FeedHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	store    SnapshotSource
	stats    StatsProvider
	metrics  *metrics.FeedMetrics
	opts     SessionOptions
	logger   *slog.Logger
}

// NewFeedHandler creates a FeedHandler. Observers are unauthenticated, so any
// origin is accepted.
func NewFeedHandler(h *hub.Hub, store SnapshotSource, stats StatsProvider, m *metrics.FeedMetrics, opts SessionOptions, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		hub:     h,
		store:   store,
		stats:   stats,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
}

func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	h.logger.Info("observer connected", "session_id", id, "remote_addr", r.RemoteAddr)

	session := NewSession(id, conn, h.hub, h.store, h.stats, h.metrics, h.opts, h.logger)
	if err := session.Run(r.Context()); err != nil && !errors.Is(err, r.Context().Err()) {
		level := slog.LevelWarn
		if !errors.Is(err, domain.ErrTransport) {
			level = slog.LevelError
		}
		h.logger.Log(r.Context(), level, "observer session ended", "session_id", id, "error", err)
	}
}
