package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/V4T54L/statusboard/internal/adapter/metrics"
	"github.com/V4T54L/statusboard/internal/adapter/normalize"
	"github.com/V4T54L/statusboard/internal/domain"
)

// IngestEventUseCase persists producer events and then broadcasts them.
//
// Each append-then-publish pair runs as one publisher commit, so the
// broadcast order is the store's insertion order and observers can prepend
// blindly.
type IngestEventUseCase struct {
	store      domain.EventStore
	publisher  domain.Publisher
	normalizer *normalize.Normalizer
	metrics    *metrics.FeedMetrics
	logger     *slog.Logger
}

// NewIngestEventUseCase creates a new IngestEventUseCase. Metrics are optional.
func NewIngestEventUseCase(store domain.EventStore, publisher domain.Publisher, normalizer *normalize.Normalizer, m *metrics.FeedMetrics, logger *slog.Logger) *IngestEventUseCase {
	return &IngestEventUseCase{
		store:      store,
		publisher:  publisher,
		normalizer: normalizer,
		metrics:    m,
		logger:     logger.With("component", "ingest"),
	}
}

// Submit validates, normalizes and persists one raw event, then publishes the
// persisted copy. Nothing is published when persistence fails, and nothing is
// retried: the caller owns retries.
func (uc *IngestEventUseCase) Submit(ctx context.Context, raw json.RawMessage) (domain.Event, error) {
	ctx, span := otel.Tracer("ingestion-service").Start(ctx, "Submit")
	defer span.End()

	event, err := uc.normalizer.Decode(raw)
	if err != nil {
		uc.count("malformed")
		span.SetStatus(codes.Error, "malformed")
		return domain.Event{}, err
	}
	return uc.submit(ctx, event, len(raw))
}

// SubmitEvent persists and publishes an event built in process, such as the
// queued events produced by an upload.
func (uc *IngestEventUseCase) SubmitEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	ctx, span := otel.Tracer("ingestion-service").Start(ctx, "SubmitEvent")
	defer span.End()
	return uc.submit(ctx, event, 0)
}

func (uc *IngestEventUseCase) submit(ctx context.Context, event domain.Event, size int) (domain.Event, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("event.job_id", event.JobID),
		attribute.String("event.content_id", event.ContentID),
	)

	persisted, err := uc.publisher.Commit(func() (domain.Event, error) {
		return uc.store.Append(ctx, event)
	})
	if err != nil {
		uc.count("persist_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		uc.logger.Error("failed to persist event", "error", err, "job_id", event.JobID)
		if !errors.Is(err, domain.ErrPersist) {
			err = fmt.Errorf("%w: %v", domain.ErrPersist, err)
		}
		return domain.Event{}, err
	}

	uc.count("accepted")
	if uc.metrics != nil && size > 0 {
		uc.metrics.BytesTotal.Add(float64(size))
	}
	span.SetAttributes(attribute.String("event.id", persisted.ID))
	uc.logger.Debug("event ingested", "event_id", persisted.ID, "job_id", persisted.JobID, "status", persisted.Status)
	return persisted, nil
}

func (uc *IngestEventUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.EventsTotal.WithLabelValues(status).Inc()
	}
}
