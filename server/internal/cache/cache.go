// Package cache provides Redis-backed caching for the latest report.
//
// The cache is an optimization only; a miss or a Redis outage falls
// back to the database, so every operation here is best-effort.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

const (
	keyPrefix = "esxifleet:cache:"
	keyLatest = "latest_report"
)

// Cache provides Redis-backed report caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a new Redis-backed cache.
func New(redisURL string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl, logger: logger}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Latest returns the cached latest report, or nil on a miss.
func (c *Cache) Latest(ctx context.Context) (*types.AggregateReport, error) {
	data, err := c.client.Get(ctx, keyPrefix+keyLatest).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var report types.AggregateReport
	if err := json.Unmarshal(data, &report); err != nil {
		// A corrupt entry behaves like a miss; drop it.
		c.logger.Warn("dropping corrupt cached report", "error", err)
		c.client.Del(ctx, keyPrefix+keyLatest)
		return nil, nil
	}
	return &report, nil
}

// SetLatest stores the latest report.
func (c *Cache) SetLatest(ctx context.Context, report *types.AggregateReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+keyLatest, data, c.ttl).Err()
}

// Invalidate removes the cached latest report.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, keyPrefix+keyLatest).Err()
}
