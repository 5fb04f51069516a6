package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/pairsbot/internal/blob/s3"
	"github.com/alanyoungcy/pairsbot/internal/broker/kafka"
	"github.com/alanyoungcy/pairsbot/internal/cache/redis"
	"github.com/alanyoungcy/pairsbot/internal/config"
	"github.com/alanyoungcy/pairsbot/internal/domain"
	"github.com/alanyoungcy/pairsbot/internal/marketdata"
	"github.com/alanyoungcy/pairsbot/internal/notify"
	"github.com/alanyoungcy/pairsbot/internal/pairs"
	"github.com/alanyoungcy/pairsbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Pairs       domain.PairSource
	Snapshots   domain.SnapshotSource
	RateLimiter domain.RateLimiter
	History     *marketdata.Client

	// Broker endpoints, only wired in trade mode.
	Feed    *kafka.Consumer
	Intents *kafka.Publisher

	// Blob storage, only wired when the dataset build uploads.
	BlobWriter domain.BlobWriter

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis: rate limiting and the snapshot read-through cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Reference-data API ---
	deps.History = marketdata.New(marketdata.Config{
		BaseURL:    cfg.MarketData.BaseURL,
		ApiKey:     cfg.MarketData.ApiKey,
		Timeout:    cfg.MarketData.Timeout.Duration,
		RateLimit:  cfg.MarketData.RateLimit,
		RateWindow: cfg.MarketData.RateWindow.Duration,
	}, deps.RateLimiter)
	deps.Snapshots = redis.NewSnapshotCache(redisClient, deps.History, cfg.Redis.SnapshotTTL.Duration)

	// --- Pair universe ---
	switch strings.ToLower(cfg.Pairs.Source) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Pairs = postgres.NewPairStore(pgClient.Pool())
	default:
		deps.Pairs = pairs.NewCSVSource(cfg.Pairs.CSVPath)
	}

	// --- Kafka (only the trade loop touches the broker) ---
	if mode == "trade" {
		brokerCfg := kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			FeedTopic:    cfg.Kafka.FeedTopic,
			IntentsTopic: cfg.Kafka.IntentsTopic,
			GroupID:      cfg.Kafka.GroupID,
			MaxWait:      cfg.Kafka.MaxWait.Duration,
			WriteTimeout: cfg.Kafka.WriteTimeout.Duration,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		}
		deps.Feed = kafka.NewConsumer(brokerCfg)
		closers = append(closers, func() { _ = deps.Feed.Close() })

		deps.Intents = kafka.NewPublisher(brokerCfg)
		closers = append(closers, func() { _ = deps.Intents.Close() })
	}

	// --- S3 blob storage (only when the dataset build uploads) ---
	if mode == "prepare" && cfg.DataPrep.Upload {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		// Catch a misconfigured bucket now, not after hours of downloads.
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
