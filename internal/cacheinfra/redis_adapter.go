package cacheinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Namespace prefixes every key written by this store, so several
	// applications can share one Redis database.
	Namespace string

	// DefaultTTL applies to Set calls without an explicit TTL.
	DefaultTTL time.Duration
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "127.0.0.1:6379",
		DialTimeout: 5 * time.Second,
		Namespace:   "dtengine",
		DefaultTTL:  time.Hour,
	}
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return &ConfigError{Field: "Addr", Message: "must not be empty"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	return nil
}

// RedisStore is a cache.Store backed by a shared Redis service. Values
// round-trip through JSON: Get returns json.RawMessage, and callers
// that cache typed values decode on read.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	log    *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, log *slog.Logger) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, cfg: cfg, log: log}, nil
}

// Get implements cache.Store. Backend failures read as misses.
func (s *RedisStore) Get(ctx context.Context, key string) (any, bool) {
	data, err := s.client.Get(ctx, s.namespaced(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.log.Warn("redis get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return json.RawMessage(data), true
}

// Set implements cache.Store. Unmarshalable values are dropped rather
// than surfaced; the cache is an optimization, never a failure source.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("redis set skipped, value not serializable", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, s.namespaced(key), data, ttl).Err(); err != nil {
		s.log.Warn("redis set failed", "key", key, "error", err)
	}
}

// Delete implements cache.Store.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.namespaced(key)).Err(); err != nil {
		s.log.Warn("redis delete failed", "key", key, "error", err)
	}
}

// ScanKeys implements cache.Store using an incremental SCAN over the
// store's namespace. Keys are returned without the namespace prefix.
func (s *RedisStore) ScanKeys(ctx context.Context) ([]string, bool) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.cfg.Namespace+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.cfg.Namespace)+1:])
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("redis scan failed", "error", err)
		return nil, false
	}
	return keys, true
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) namespaced(key string) string {
	return s.cfg.Namespace + ":" + key
}
