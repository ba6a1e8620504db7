package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/V4T54L/statusboard/internal/observer"
	"github.com/V4T54L/statusboard/internal/pkg/config"
	"github.com/V4T54L/statusboard/internal/pkg/logger"
	"github.com/V4T54L/statusboard/internal/projection"
)

func main() {
	cfg, err := config.LoadObserver()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	view := projection.NewViewState(cfg.PageSize)
	groupBy, err := projection.ParseGroupKey(cfg.GroupBy)
	if err != nil {
		logger.Error("invalid GROUP_BY", "error", err)
		os.Exit(1)
	}
	view.SetGroupBy(groupBy)
	view.SetSearch(cfg.Search)
	view.SetContentType(cfg.ContentType)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDisplay(os.Stdout, view)

	var poller *observer.AnalyticsPoller
	engine := observer.NewEngine(observer.NewWebsocketDialer(cfg.FeedURL), observer.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		MirrorLimit:    cfg.MirrorLimit,
		OnChange:       d.SetMirror,
		OnState:        d.SetState,
		OnAnalytics: func(stats map[string]float64) {
			poller.Deliver(stats)
		},
	}, logger)
	poller = observer.NewAnalyticsPoller(engine, cfg.AnalyticsInterval, d.SetStats, logger)
	defer poller.Stop()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			toggled, err := d.Apply(scanner.Text())
			if errors.Is(err, errQuit) {
				stop()
				return
			}
			if err != nil {
				fmt.Fprintln(os.Stdout, err)
				continue
			}
			if toggled {
				if d.AnalyticsShown() {
					poller.Start()
				} else {
					poller.Stop()
				}
			}
		}
	}()

	logger.Info("watching feed", "url", cfg.FeedURL)
	d.Render()
	if err := engine.Run(ctx); err != nil {
		logger.Error("sync engine stopped", "error", err)
		os.Exit(1)
	}
}
