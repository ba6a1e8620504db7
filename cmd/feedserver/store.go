package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/statusboard/internal/adapter/repository/journal"
	"github.com/V4T54L/statusboard/internal/adapter/repository/memory"
	redisrepo "github.com/V4T54L/statusboard/internal/adapter/repository/redis"
	"github.com/V4T54L/statusboard/internal/adapter/repository/sqlstore"
	"github.com/V4T54L/statusboard/internal/domain"
	"github.com/V4T54L/statusboard/internal/pkg/config"
)

// memoryLimit bounds the in-memory backend, which only serves snapshots.
const memoryLimit = 10000

const redisHealthInterval = 5 * time.Second

// openStore builds the event store selected by STORE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.EventStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory event store, events are lost on restart")
		return memory.NewEventRepository(memoryLimit), nil
	case config.StoreSQLite:
		return openSQL(ctx, sqlstore.SQLite, cfg.SQLitePath, logger)
	case config.StorePostgres:
		return openSQL(ctx, sqlstore.Postgres, cfg.PostgresURL, logger)
	case config.StoreRedis:
		client, err := newRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		repo := redisrepo.NewEventRepository(client, cfg.RedisStream, cfg.RedisStreamMaxLen, logger)
		if err := repo.Ping(ctx); err != nil {
			// Appends fail with ErrPersist until redis comes back.
			logger.Warn("could not connect to redis", "error", err)
		}
		go repo.StartHealthCheck(ctx, redisHealthInterval)
		return repo, nil
	case config.StoreJournal:
		repo, err := journal.NewRepository(cfg.JournalDir, cfg.JournalSegSize, cfg.JournalMaxSize, cfg.SnapshotSize, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openSQL(ctx context.Context, dialect sqlstore.Dialect, dsn string, logger *slog.Logger) (domain.EventStore, error) {
	repo, err := sqlstore.Open(ctx, dialect, dsn, logger)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// newRedisClient accepts either a redis:// URL or a host:port address.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
