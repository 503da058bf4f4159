// Package cache keeps the final results of closed jobs in redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "final_result:"

// ResultCache stores final results by job id
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewResultCache connects to redisURL and verifies the connection
func NewResultCache(ctx context.Context, redisURL string, ttl time.Duration, logger zerolog.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewResultCacheWith(client, ttl, logger), nil
}

// NewResultCacheWith wraps an existing client
func NewResultCacheWith(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "result_cache").Logger(),
	}
}

// Get returns the cached result; the boolean is false on a miss
func (c *ResultCache) Get(ctx context.Context, jobID string) (string, bool, error) {
	v, err := c.client.Get(ctx, keyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set caches a result for the configured TTL
func (c *ResultCache) Set(ctx context.Context, jobID, result string) error {
	if err := c.client.Set(ctx, keyPrefix+jobID, result, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	c.logger.Debug().Str("job_id", jobID).Msg("Final result cached")
	return nil
}

// Delete drops a cached result
func (c *ResultCache) Delete(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the redis client
func (c *ResultCache) Close() error {
	return c.client.Close()
}
