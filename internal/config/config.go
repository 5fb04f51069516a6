// Package config defines the top-level configuration for the pairs engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAIRSBOT_* environment variables.
type Config struct {
	Strategy   StrategyConfig   `toml:"strategy"`
	Pairs      PairsConfig      `toml:"pairs"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Relay      RelayConfig      `toml:"relay"`
	MarketData MarketDataConfig `toml:"marketdata"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	DataPrep   DataPrepConfig   `toml:"dataprep"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// StrategyConfig holds the trading strategy parameters.
type StrategyConfig struct {
	Name string `toml:"name"`
	// Cash is the total capital allocation as a decimal string, e.g. "300000".
	Cash         string   `toml:"cash"`
	InitialDelay duration `toml:"initial_delay"`
	Interval     duration `toml:"interval"`
}

// PairsConfig selects where the pair universe is loaded from.
type PairsConfig struct {
	// Source is "csv" or "postgres".
	Source  string `toml:"source"`
	CSVPath string `toml:"csv_path"`
}

// KafkaConfig holds broker connection parameters for both topics.
type KafkaConfig struct {
	Brokers      []string `toml:"brokers"`
	FeedTopic    string   `toml:"feed_topic"`
	IntentsTopic string   `toml:"intents_topic"`
	GroupID      string   `toml:"group_id"`
	MaxWait      duration `toml:"max_wait"`
	WriteTimeout duration `toml:"write_timeout"`
	RequiredAcks int      `toml:"required_acks"`
}

// RelayConfig tunes the feed relay.
type RelayConfig struct {
	MaxInFlight int64 `toml:"max_inflight"`
	// WindDownWithinSec triggers wind-down when the market reports this many
	// seconds or fewer until close.
	WindDownWithinSec int64 `toml:"winddown_within_sec"`
}

// MarketDataConfig holds the reference-data REST API parameters.
type MarketDataConfig struct {
	BaseURL string   `toml:"base_url"`
	ApiKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	// RateLimit caps requests per RateWindow across the process.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// SnapshotTTL bounds how long cached open/close snapshots are served.
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DataPrepConfig holds parameters for the historical dataset build.
type DataPrepConfig struct {
	OutputDir string `toml:"output_dir"`
	// Days is the business-day lookback of the dataset.
	Days int `toml:"days"`
	// ChunkDays is the window size of each aggregate download request.
	ChunkDays int  `toml:"chunk_days"`
	Upload    bool `toml:"upload"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Strategy: StrategyConfig{
			Name:         "double-trouble",
			Cash:         "300000",
			InitialDelay: duration{60 * time.Second},
			Interval:     duration{300 * time.Second},
		},
		Pairs: PairsConfig{
			Source:  "csv",
			CSVPath: "trade_pairs.csv",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			FeedTopic:    "filtered-feed",
			IntentsTopic: "position-intents",
			GroupID:      "pairsbot",
			MaxWait:      duration{500 * time.Millisecond},
			WriteTimeout: duration{10 * time.Second},
			RequiredAcks: -1,
		},
		Relay: RelayConfig{
			MaxInFlight:       50,
			WindDownWithinSec: 600,
		},
		MarketData: MarketDataConfig{
			BaseURL:    "https://api.polygon.io",
			Timeout:    duration{30 * time.Second},
			RateLimit:  5,
			RateWindow: duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			SnapshotTTL: duration{12 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pairsbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairsbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		DataPrep: DataPrepConfig{
			OutputDir: "data",
			Days:      100,
			ChunkDays: 35,
			Upload:    false,
		},
		Notify: NotifyConfig{
			Events: []string{"startup", "wind_down", "abnormal_stop"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"prepare": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPairSources enumerates the accepted values for PairsConfig.Source.
var validPairSources = map[string]bool{
	"csv":      true,
	"postgres": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, prepare)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Strategy
	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if cash, err := decimal.NewFromString(c.Strategy.Cash); err != nil {
		errs = append(errs, fmt.Sprintf("strategy: cash %q is not a decimal", c.Strategy.Cash))
	} else if !cash.IsPositive() {
		errs = append(errs, "strategy: cash must be > 0")
	}
	if c.Strategy.InitialDelay.Duration <= 0 {
		errs = append(errs, "strategy: initial_delay must be > 0")
	}
	if c.Strategy.Interval.Duration <= 0 {
		errs = append(errs, "strategy: interval must be > 0")
	}

	// Pairs
	if !validPairSources[strings.ToLower(c.Pairs.Source)] {
		errs = append(errs, fmt.Sprintf("pairs: unknown source %q (valid: csv, postgres)", c.Pairs.Source))
	}
	if strings.ToLower(c.Pairs.Source) == "csv" && c.Pairs.CSVPath == "" {
		errs = append(errs, "pairs: csv_path must be set when source is csv")
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka: brokers must not be empty")
	}
	if c.Kafka.FeedTopic == "" {
		errs = append(errs, "kafka: feed_topic must not be empty")
	}
	if c.Kafka.IntentsTopic == "" {
		errs = append(errs, "kafka: intents_topic must not be empty")
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, "kafka: group_id must not be empty")
	}

	// Relay
	if c.Relay.MaxInFlight < 1 {
		errs = append(errs, "relay: max_inflight must be >= 1")
	}
	if c.Relay.WindDownWithinSec < 1 {
		errs = append(errs, "relay: winddown_within_sec must be >= 1")
	}

	// MarketData
	if c.MarketData.BaseURL == "" {
		errs = append(errs, "marketdata: base_url must not be empty")
	}
	if c.MarketData.RateLimit < 1 {
		errs = append(errs, "marketdata: rate_limit must be >= 1")
	}
	if c.MarketData.RateWindow.Duration <= 0 {
		errs = append(errs, "marketdata: rate_window must be > 0")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres — only required when it backs the pair universe.
	if strings.ToLower(c.Pairs.Source) == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3 — only required when dataset upload is on.
	if c.DataPrep.Upload {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when dataprep.upload is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when dataprep.upload is set")
		}
	}

	// DataPrep
	if c.DataPrep.Days < 1 {
		errs = append(errs, "dataprep: days must be >= 1")
	}
	if c.DataPrep.ChunkDays < 1 {
		errs = append(errs, "dataprep: chunk_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// CashDecimal returns the validated capital allocation. Call only after
// Validate has passed.
func (c *Config) CashDecimal() decimal.Decimal {
	cash, err := decimal.NewFromString(c.Strategy.Cash)
	if err != nil {
		return decimal.Zero
	}
	return cash
}
