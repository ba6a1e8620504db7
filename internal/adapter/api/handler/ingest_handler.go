package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/domain"
)

// Ingester is the ingestion use case as seen by the HTTP layer.
type Ingester interface {
	Submit(ctx context.Context, raw json.RawMessage) (domain.Event, error)
	SubmitEvent(ctx context.Context, event domain.Event) (domain.Event, error)
}

// IngestResponse is returned for NDJSON batches.
type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// IngestHandler handles HTTP requests for event ingestion.
type IngestHandler struct {
	useCase      Ingester
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.FeedMetrics
	limiter      *rate.Limiter
}

// NewIngestHandler creates a new IngestHandler. A nil limiter disables rate
// limiting; metrics are optional.
func NewIngestHandler(uc Ingester, logger *slog.Logger, maxEventSize int64, m *metrics.FeedMetrics, limiter *rate.Limiter) *IngestHandler {
	return &IngestHandler{
		useCase:      uc,
		logger:       logger.With("component", "ingest_handler"),
		maxEventSize: maxEventSize,
		metrics:      m,
		limiter:      limiter,
	}
}

// ServeHTTP accepts a single JSON object or an NDJSON stream of objects.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		h.count("rate_limited")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		h.handleSingleJSON(w, r)
	case "application/x-ndjson":
		h.handleNDJSON(w, r)
	default:
		http.Error(w, "Unsupported Media Type: "+r.Header.Get("Content-Type"), http.StatusUnsupportedMediaType)
	}
}

func (h *IngestHandler) handleSingleJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	event, err := h.useCase.Submit(r.Context(), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, event)
}

// handleNDJSON submits every line in order. Malformed lines are skipped and
// counted; a persistence failure stops the batch so the producer can retry
// from the first rejected line.
func (h *IngestHandler) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	var resp IngestResponse

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 64*1024), int(h.maxEventSize))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if _, err := h.useCase.Submit(r.Context(), json.RawMessage(line)); err != nil {
			if errors.Is(err, domain.ErrMalformed) {
				h.logger.Warn("skipping malformed ndjson line", "error", err)
				resp.Rejected++
				continue
			}
			h.logger.Error("failed to ingest event from ndjson stream", "error", err, "accepted", resp.Accepted)
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Accepted++
	}
	if err := scanner.Err(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *IngestHandler) writeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, bufio.ErrTooLong):
		h.count("too_large")
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, domain.ErrMalformed):
		http.Error(w, "Bad Request: payload must be a JSON object", http.StatusBadRequest)
	case errors.Is(err, domain.ErrPersist):
		http.Error(w, "Service Unavailable: event was not stored", http.StatusServiceUnavailable)
	default:
		h.logger.Error("failed to process ingest request", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *IngestHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.EventsTotal.WithLabelValues(status).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
