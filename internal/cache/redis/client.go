// Package redis holds the engine's shared session state: the sliding-window
// rate limiter in front of the market-data API and the day-scoped snapshot
// cache that band construction reads through. Both live in one Redis so a
// restarted engine (or a second process in prepare mode) shares quota and
// snapshots with its siblings.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds the connection parameters from the `[redis]` section.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the driver connection shared by the rate limiter and the
// snapshot cache.
type Client struct {
	rdb *redis.Client
}

// New connects and pings. Startup fails fast here: without Redis neither the
// rate limiter nor the snapshot cache can run, and both sit on the critical
// path of band construction.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver client to the limiter and cache in this
// package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
