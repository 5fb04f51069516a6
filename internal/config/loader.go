package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAIRSBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAIRSBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "PAIRSBOT_STRATEGY_NAME")
	setStr(&cfg.Strategy.Cash, "PAIRSBOT_STRATEGY_CASH")
	setDuration(&cfg.Strategy.InitialDelay, "PAIRSBOT_STRATEGY_INITIAL_DELAY")
	setDuration(&cfg.Strategy.Interval, "PAIRSBOT_STRATEGY_INTERVAL")

	// ── Pairs ──
	setStr(&cfg.Pairs.Source, "PAIRSBOT_PAIRS_SOURCE")
	setStr(&cfg.Pairs.CSVPath, "PAIRSBOT_PAIRS_CSV_PATH")

	// ── Kafka ──
	setStringSlice(&cfg.Kafka.Brokers, "PAIRSBOT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.FeedTopic, "PAIRSBOT_KAFKA_FEED_TOPIC")
	setStr(&cfg.Kafka.IntentsTopic, "PAIRSBOT_KAFKA_INTENTS_TOPIC")
	setStr(&cfg.Kafka.GroupID, "PAIRSBOT_KAFKA_GROUP_ID")
	setDuration(&cfg.Kafka.MaxWait, "PAIRSBOT_KAFKA_MAX_WAIT")
	setDuration(&cfg.Kafka.WriteTimeout, "PAIRSBOT_KAFKA_WRITE_TIMEOUT")
	setInt(&cfg.Kafka.RequiredAcks, "PAIRSBOT_KAFKA_REQUIRED_ACKS")

	// ── Relay ──
	setInt64(&cfg.Relay.MaxInFlight, "PAIRSBOT_RELAY_MAX_INFLIGHT")
	setInt64(&cfg.Relay.WindDownWithinSec, "PAIRSBOT_RELAY_WINDDOWN_WITHIN_SEC")

	// ── MarketData ──
	setStr(&cfg.MarketData.BaseURL, "PAIRSBOT_MARKETDATA_BASE_URL")
	setStr(&cfg.MarketData.ApiKey, "PAIRSBOT_MARKETDATA_API_KEY")
	setDuration(&cfg.MarketData.Timeout, "PAIRSBOT_MARKETDATA_TIMEOUT")
	setInt(&cfg.MarketData.RateLimit, "PAIRSBOT_MARKETDATA_RATE_LIMIT")
	setDuration(&cfg.MarketData.RateWindow, "PAIRSBOT_MARKETDATA_RATE_WINDOW")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAIRSBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAIRSBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAIRSBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAIRSBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAIRSBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAIRSBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "PAIRSBOT_REDIS_SNAPSHOT_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PAIRSBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PAIRSBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAIRSBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAIRSBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAIRSBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAIRSBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAIRSBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAIRSBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAIRSBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAIRSBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAIRSBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAIRSBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAIRSBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAIRSBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAIRSBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAIRSBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAIRSBOT_S3_FORCE_PATH_STYLE")

	// ── DataPrep ──
	setStr(&cfg.DataPrep.OutputDir, "PAIRSBOT_DATAPREP_OUTPUT_DIR")
	setInt(&cfg.DataPrep.Days, "PAIRSBOT_DATAPREP_DAYS")
	setInt(&cfg.DataPrep.ChunkDays, "PAIRSBOT_DATAPREP_CHUNK_DAYS")
	setBool(&cfg.DataPrep.Upload, "PAIRSBOT_DATAPREP_UPLOAD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAIRSBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAIRSBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAIRSBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAIRSBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAIRSBOT_MODE")
	setStr(&cfg.LogLevel, "PAIRSBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
