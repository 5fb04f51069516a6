package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// SnapshotCache is a read-through cache in front of a domain.SnapshotSource.
// Band construction hits every ticker in the universe at startup; caching the
// open/close snapshots per session day means a restart mid-session replays
// from Redis instead of the upstream API.
type SnapshotCache struct {
	rdb    *goredis.Client
	source domain.SnapshotSource
	ttl    time.Duration
}

// NewSnapshotCache creates a SnapshotCache delegating misses to source.
func NewSnapshotCache(c *Client, source domain.SnapshotSource, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SnapshotCache{rdb: c.Underlying(), source: source, ttl: ttl}
}

// snapshotKey scopes entries by session day so yesterday's open can never
// seed today's bands.
func snapshotKey(ticker string) string {
	return fmt.Sprintf("snapshot:%s:%s", time.Now().UTC().Format("2006-01-02"), ticker)
}

type cachedSnapshot struct {
	Open      string `json:"open"`
	PrevClose string `json:"prev_close"`
}

// OpenClose returns the cached snapshot for ticker, fetching and storing it
// on a miss. Cache errors degrade to a direct upstream call.
func (sc *SnapshotCache) OpenClose(ctx context.Context, ticker string) (domain.Snapshot, error) {
	key := snapshotKey(ticker)

	raw, err := sc.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached cachedSnapshot
		if err := json.Unmarshal(raw, &cached); err == nil {
			if snap, err := cached.toDomain(); err == nil {
				return snap, nil
			}
		}
		// Unreadable entry; fall through and overwrite it.
	} else if !errors.Is(err, goredis.Nil) && ctx.Err() != nil {
		return domain.Snapshot{}, ctx.Err()
	}

	snap, err := sc.source.OpenClose(ctx, ticker)
	if err != nil {
		return domain.Snapshot{}, err
	}

	payload, err := json.Marshal(cachedSnapshot{
		Open:      snap.Open.String(),
		PrevClose: snap.PrevClose.String(),
	})
	if err == nil {
		// Best effort: a failed SET only costs the next caller a fetch.
		_ = sc.rdb.Set(ctx, key, payload, sc.ttl).Err()
	}
	return snap, nil
}

func (c cachedSnapshot) toDomain() (domain.Snapshot, error) {
	var snap domain.Snapshot
	var err error
	if snap.Open, err = decimal.NewFromString(c.Open); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.PrevClose, err = decimal.NewFromString(c.PrevClose); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotSource = (*SnapshotCache)(nil)
