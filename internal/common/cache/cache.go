// Package cache wraps a Redis client for short-lived coordination state such
// as resend cooldowns.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis configuration. An empty address disables the cache.
type Config struct {
	Addr      string `envconfig:"REDIS_ADDR"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"affiliatepay"`
}

// Enabled reports whether a Redis address is configured
func (c Config) Enabled() bool {
	return c.Addr != ""
}

// Client wraps a Redis client with namespaced keys
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logger.Info("redis connection established", "addr", cfg.Addr, "db", cfg.DB)

	return NewWithClient(rdb, cfg.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(rdb redis.UniversalClient, prefix string, logger *slog.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

// Close closes the underlying client
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings Redis
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) key(namespace, key string) string {
	return Key(c.prefix, namespace, key)
}

// Key builds a namespaced key of the form prefix:namespace:key
func Key(prefix, namespace, key string) string {
	if prefix == "" {
		return namespace + ":" + key
	}
	return prefix + ":" + namespace + ":" + key
}

// Acquire claims a cooldown slot. It returns true when the slot was free and
// is now held for ttl; otherwise it returns false and the time left on the
// current holder.
func (c *Client) Acquire(ctx context.Context, namespace, key string, ttl time.Duration) (bool, time.Duration, error) {
	k := c.key(namespace, key)

	ok, err := c.rdb.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("acquiring %s: %w", k, err)
	}
	if ok {
		return true, 0, nil
	}

	left, err := c.rdb.TTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("reading ttl of %s: %w", k, err)
	}
	if left < 0 {
		left = 0
	}
	return false, left, nil
}

// Release drops a cooldown slot
func (c *Client) Release(ctx context.Context, namespace, key string) error {
	return c.rdb.Del(ctx, c.key(namespace, key)).Err()
}
