package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/models"
)

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string // host:port
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisLookupCache stores finished ledger lookups in Redis so replicas share them
type RedisLookupCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisLookupCache creates a Redis-backed lookup cache
func NewRedisLookupCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLookupCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLookupCache{client: client, ttl: ttl, prefix: "ledger:lookup:", logger: logger}
}

func (c *RedisLookupCache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

// Get returns a cached lookup. Redis errors are logged and reported as misses.
func (c *RedisLookupCache) Get(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, bool) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Lookup cache read failed", zap.String("request_id", id.String()), zap.Error(err))
		}
		return nil, false
	}

	var lookup models.LedgerLookup
	if err := json.Unmarshal(data, &lookup); err != nil {
		c.logger.Warn("Dropping undecodable lookup cache entry", zap.String("request_id", id.String()), zap.Error(err))
		c.client.Del(ctx, c.key(id))
		return nil, false
	}
	return &lookup, true
}

// Set stores a lookup with the configured TTL
func (c *RedisLookupCache) Set(ctx context.Context, lookup *models.LedgerLookup) {
	if lookup == nil {
		return
	}
	data, err := json.Marshal(lookup)
	if err != nil {
		c.logger.Warn("Failed to encode lookup for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(lookup.Entry.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Lookup cache write failed", zap.String("request_id", lookup.Entry.ID.String()), zap.Error(err))
	}
}
