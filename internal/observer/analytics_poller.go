package observer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultAnalyticsInterval is the polling period while analytics are shown.
const DefaultAnalyticsInterval = 5 * time.Second

// AnalyticsRequester sends one analytics request.
type AnalyticsRequester interface {
	RequestAnalytics(ctx context.Context) error
}

// AnalyticsPoller requests analytics periodically while started. Stop
// cancels the timer without waiting for a request in flight, and responses
// delivered after Stop are discarded.
type AnalyticsPoller struct {
	requester AnalyticsRequester
	interval  time.Duration
	onStats   func(map[string]float64)
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAnalyticsPoller creates a stopped poller.
func NewAnalyticsPoller(requester AnalyticsRequester, interval time.Duration, onStats func(map[string]float64), logger *slog.Logger) *AnalyticsPoller {
	if interval <= 0 {
		interval = DefaultAnalyticsInterval
	}
	return &AnalyticsPoller{
		requester: requester,
		interval:  interval,
		onStats:   onStats,
		logger:    logger.With("component", "analytics_poller"),
	}
}

// Start begins polling with an immediate first request. Starting a running
// poller does nothing.
func (p *AnalyticsPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx)
}

// Stop ends polling. It returns immediately.
func (p *AnalyticsPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Active reports whether the poller is started.
func (p *AnalyticsPoller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Deliver hands a response to the stats callback if the poller is active.
// It reports whether the response was accepted.
func (p *AnalyticsPoller) Deliver(stats map[string]float64) bool {
	if !p.Active() {
		return false
	}
	if p.onStats != nil {
		p.onStats(stats)
	}
	return true
}

func (p *AnalyticsPoller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.requester.RequestAnalytics(ctx); err != nil && ctx.Err() == nil {
			p.logger.Debug("analytics request failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
