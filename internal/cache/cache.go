/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a two-level cache for catalog reads: an in-process
// LRU in front of Redis. Either level may be absent; with neither the cache
// simply misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultCatalogTTL = 10 * time.Minute
	DefaultTalkTTL    = 30 * time.Minute
	DefaultL1TTL      = 30 * time.Second
)

// Key prefixes for Redis cache
const (
	keyRoot        = "confplanner:cache:"
	KeyTalkList    = keyRoot + "talks"
	KeyTrackList   = keyRoot + "tracks"
	KeySpeakerList = keyRoot + "speakers"
	KeyTalk        = keyRoot + "talk:"    // + talk_id
	KeySpeaker     = keyRoot + "speaker:" // + speaker_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	L1Size int
	L1TTL  time.Duration

	CatalogTTL time.Duration
	TalkTTL    time.Duration

	// DisableOnError stops using Redis after the first failed operation.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		RedisEnabled:   true,
		L1Size:         512,
		L1TTL:          DefaultL1TTL,
		CatalogTTL:     DefaultCatalogTTL,
		TalkTTL:        DefaultTalkTTL,
		DisableOnError: true,
	}
}

type l1Entry struct {
	data    []byte
	expires time.Time
}

// Cache provides Redis-backed caching with an LRU front and graceful fallback.
type Cache struct {
	client *redis.Client
	l1     *lru.Cache[string, l1Entry]
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a cache. An unreachable Redis is logged and skipped.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if !cfg.RedisEnabled {
		return newCache(nil, cfg, logger)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running with in-process cache only")
		_ = client.Close()
		return newCache(nil, cfg, logger)
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return newCache(client, cfg, logger)
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, cfg Config, logger zerolog.Logger) (*Cache, error) {
	return newCache(client, cfg, logger)
}

func newCache(client *redis.Client, cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = DefaultCatalogTTL
	}
	if cfg.TalkTTL <= 0 {
		cfg.TalkTTL = DefaultTalkTTL
	}
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = DefaultL1TTL
	}

	c := &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
		now:    time.Now,
	}
	if cfg.L1Size > 0 {
		l1, err := lru.New[string, l1Entry](cfg.L1Size)
		if err != nil {
			return nil, fmt.Errorf("create L1 cache: %w", err)
		}
		c.l1 = l1
	}
	return c, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the Redis level is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling Redis cache due to error")
	}
}

// get looks up key in L1 then Redis and unmarshals into dest.
func (c *Cache) get(ctx context.Context, name, key string, dest any) bool {
	if c.l1 != nil {
		if e, ok := c.l1.Get(key); ok {
			if c.now().Before(e.expires) && json.Unmarshal(e.data, dest) == nil {
				telemetry.CacheHitsTotal.WithLabelValues(name, "l1").Inc()
				return true
			}
			c.l1.Remove(key)
		}
	}

	if !c.IsAvailable() {
		telemetry.CacheMissesTotal.WithLabelValues(name).Inc()
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		telemetry.CacheMissesTotal.WithLabelValues(name).Inc()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheMissesTotal.WithLabelValues(name).Inc()
		return false
	}

	c.putL1(key, data)
	telemetry.CacheHitsTotal.WithLabelValues(name, "redis").Inc()
	return true
}

// set stores a value in both levels.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	c.putL1(key, data)

	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) putL1(key string, data []byte) {
	if c.l1 == nil {
		return
	}
	c.l1.Add(key, l1Entry{data: data, expires: c.now().Add(c.config.L1TTL)})
}

// deletePattern deletes all Redis keys matching a pattern and purges L1.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if c.l1 != nil {
		c.l1.Purge()
	}

	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}
