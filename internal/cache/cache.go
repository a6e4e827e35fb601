// Package cache stores consolidated snapshots in Redis so a restarted
// assistant can resume mid-window and dashboards can read without
// touching the engine.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no snapshot exists for the requested key.
var ErrNotFound = errors.New("cache: not found")

// Config holds connection parameters for the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache wraps a go-redis client with the snapshot key schema:
//
//	snapshot:{asset}:latest         - most recent payload
//	snapshot:{asset}:{windowStart}  - payload per window, expiring
type Cache struct {
	rdb *redis.Client
}

// New connects and pings Redis, returning an error if it is unreachable.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return &Cache{rdb: rdb}, nil
}

func latestKey(asset string) string {
	return "snapshot:" + asset + ":latest"
}

func windowKey(asset string, windowStart int64) string {
	return "snapshot:" + asset + ":" + strconv.FormatInt(windowStart, 10)
}

// PutSnapshot stores the payload under both the latest key and the
// per-window key. The per-window key expires after ttl; the latest key
// never expires so a cold dashboard always finds something.
func (c *Cache) PutSnapshot(ctx context.Context, asset string, windowStart int64, payload []byte, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, latestKey(asset), payload, 0)
	pipe.Set(ctx, windowKey(asset, windowStart), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: put snapshot %s/%d: %w", asset, windowStart, err)
	}
	return nil
}

// LatestSnapshot returns the most recently stored payload for the asset.
func (c *Cache) LatestSnapshot(ctx context.Context, asset string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, latestKey(asset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get latest snapshot %s: %w", asset, err)
	}
	return data, nil
}

// WindowSnapshot returns the payload stored for a specific window start.
func (c *Cache) WindowSnapshot(ctx context.Context, asset string, windowStart int64) ([]byte, error) {
	data, err := c.rdb.Get(ctx, windowKey(asset, windowStart)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get window snapshot %s/%d: %w", asset, windowStart, err)
	}
	return data, nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
