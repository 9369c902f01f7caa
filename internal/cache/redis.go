// Package cache provides a shared verdict cache backed by Redis, for
// deployments that run more than one moderator instance.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raine/review-moderator/internal/moderation"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "moderation:verdict:"
	DefaultTTL    = 24 * time.Hour
)

// RedisConfig configures a RedisVerdictCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisVerdictCache implements moderation.VerdictCache on Redis. Entries
// expire via Redis TTL.
type RedisVerdictCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisVerdictCache connects to Redis and verifies the connection.
func NewRedisVerdictCache(ctx context.Context, cfg RedisConfig) (*RedisVerdictCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisVerdictCache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisVerdictCache) key(k string) string {
	return c.prefix + k
}

// GetVerdict returns nil, nil on a miss.
func (c *RedisVerdictCache) GetVerdict(ctx context.Context, key string) (*moderation.ModerationVerdict, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached verdict: %w", err)
	}

	var v moderation.ModerationVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}
	return &v, nil
}

func (c *RedisVerdictCache) SetVerdict(ctx context.Context, key string, v *moderation.ModerationVerdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache verdict: %w", err)
	}
	return nil
}

func (c *RedisVerdictCache) Close() error {
	return c.client.Close()
}

var _ moderation.VerdictCache = (*RedisVerdictCache)(nil)
