package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends understood by the feed server.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreJournal  = "journal"
)

// Config holds the feed server configuration.
type Config struct {
	LogLevel            string  `env:"LOG_LEVEL" envDefault:"info"`
	FeedServerAddr      string  `env:"FEED_SERVER_ADDR" envDefault:":5001"`
	MetricsAddr         string  `env:"METRICS_ADDR" envDefault:":9091"`
	MaxEventSize        int64   `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"`   // 1MB
	MaxUploadSize       int64   `env:"MAX_UPLOAD_SIZE_BYTES" envDefault:"67108864"` // 64MB
	SnapshotSize        int     `env:"SNAPSHOT_SIZE" envDefault:"100"`
	SubscriberQueueSize int     `env:"SUBSCRIBER_QUEUE_SIZE" envDefault:"256"`
	IngestRateLimit     float64 `env:"INGEST_RATE_LIMIT" envDefault:"0"` // events/s, 0 disables
	IngestRateBurst     int     `env:"INGEST_RATE_BURST" envDefault:"100"`

	StoreBackend      string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"statusboard.db"`
	PostgresURL       string `env:"POSTGRES_URL"`
	RedisAddr         string `env:"REDIS_ADDR"`
	RedisStream       string `env:"REDIS_STREAM" envDefault:"feed_events"`
	RedisStreamMaxLen int64  `env:"REDIS_STREAM_MAXLEN" envDefault:"100000"`
	JournalDir        string `env:"JOURNAL_DIR" envDefault:"journal"`
	JournalSegSize    int64  `env:"JOURNAL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`   // 100MB
	JournalMaxSize    int64  `env:"JOURNAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB, 0 keeps everything

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"dashboard"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"statusboard"`
}

// ObserverConfig holds the feedwatch client configuration.
type ObserverConfig struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	FeedURL           string        `env:"FEED_URL" envDefault:"ws://localhost:5001/ws"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
	AnalyticsInterval time.Duration `env:"ANALYTICS_INTERVAL" envDefault:"5s"`
	MirrorLimit       int           `env:"MIRROR_LIMIT" envDefault:"0"`
	PageSize          int           `env:"PAGE_SIZE" envDefault:"10"`
	GroupBy           string        `env:"GROUP_BY" envDefault:"none"`
	Search            string        `env:"SEARCH"`
	ContentType       string        `env:"CONTENT_TYPE"`
}

// Load reads the feed server configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadObserver reads the observer configuration from environment variables.
func LoadObserver() (*ObserverConfig, error) {
	_ = godotenv.Load()

	cfg := &ObserverConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid PAGE_SIZE %d: must be positive", cfg.PageSize)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SnapshotSize <= 0 {
		return fmt.Errorf("invalid SNAPSHOT_SIZE %d: must be positive", c.SnapshotSize)
	}
	if c.SubscriberQueueSize <= 0 {
		return fmt.Errorf("invalid SUBSCRIBER_QUEUE_SIZE %d: must be positive", c.SubscriberQueueSize)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite, StoreJournal:
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for store backend %q", c.StoreBackend)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for store backend %q", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}
