package domain

import (
	"context"
	"io"
	"time"
)

// MessageSource abstracts the inbound side of the message broker: one
// subscribed stream of raw payloads. Fetch blocks until a message arrives,
// the stream ends (io.EOF), or the context is cancelled.
type MessageSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// IntentPublisher abstracts the outbound side of the message broker. Publish
// delivers one intent, keyed for partitioning, and returns once the broker
// has accepted it. Retry policy, if any, belongs to the broker client.
type IntentPublisher interface {
	Publish(ctx context.Context, intent PositionIntent) error
}

// PairSource yields the static pair universe at startup.
type PairSource interface {
	Pairs(ctx context.Context) ([]TradePair, error)
}

// SnapshotSource yields a ticker's day-open and previous-close prices, used
// once per session to seed the equilibrium.
type SnapshotSource interface {
	OpenClose(ctx context.Context, ticker string) (Snapshot, error)
}

// RateLimiter provides distributed rate limiting for outbound API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// BlobWriter stores a prepared dataset in object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
