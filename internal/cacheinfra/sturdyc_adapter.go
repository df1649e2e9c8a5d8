// Package cacheinfra provides the cache.Store backends: a sturdyc
// in-memory adapter for single-process deployments and a Redis adapter
// for shared caches.
package cacheinfra

import (
	"context"
	"log/slog"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc memory store.
type Config struct {
	// Capacity defines the maximum number of entries the cache can
	// store. Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent
	// access. Must be greater than 0.
	NumShards int

	// TTL is the client-wide upper bound on entry lifetime. Per-entry
	// TTLs shorter than this are honored by the adapter itself.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired
	// entries. Zero uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

func (c Config) options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// entry wraps a cached value with its own deadline. sturdyc's TTL is
// client-wide, so per-entry TTLs are enforced here: an expired hit
// reads as a miss and is evicted eagerly.
type entry struct {
	value    any
	deadline time.Time
}

// MemoryStore is a cache.Store backed by a sharded sturdyc client.
type MemoryStore struct {
	client     *sturdyc.Client[entry]
	defaultTTL time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// NewMemoryStore creates a sturdyc-backed store from the given config.
func NewMemoryStore(cfg Config, log *slog.Logger) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)

	return &MemoryStore{
		client:     client,
		defaultTTL: cfg.TTL,
		log:        log,
		now:        time.Now,
	}, nil
}

// Get implements cache.Store.
func (s *MemoryStore) Get(_ context.Context, key string) (any, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if !e.deadline.IsZero() && s.now().After(e.deadline) {
		s.client.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set implements cache.Store. A non-positive ttl uses the client TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.client.Set(key, entry{value: value, deadline: s.now().Add(ttl)})
}

// Delete implements cache.Store.
func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.client.Delete(key)
}

// ScanKeys implements cache.Store. sturdyc supports enumeration.
func (s *MemoryStore) ScanKeys(_ context.Context) ([]string, bool) {
	return s.client.ScanKeys(), true
}
