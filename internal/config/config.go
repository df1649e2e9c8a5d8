// Package config handles application configuration loading and
// validation for the listing engine and its cache layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend identifiers for the cache store.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// Debug includes full error detail in failure envelopes. Keep off
	// outside development.
	Debug bool `yaml:"debug"`
}

// AuthConfig holds security token settings. Principal resolution is
// delegated to an external identity provider and is not configured
// here.
type AuthConfig struct {
	TokenSecret    string        `yaml:"token_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	ReadCapability string        `yaml:"read_capability"`
}

// MemoryCacheConfig holds the in-memory backend settings.
type MemoryCacheConfig struct {
	Capacity           int `yaml:"capacity"`
	Shards             int `yaml:"shards"`
	EvictionPercentage int `yaml:"eviction_percentage"`
}

// RedisCacheConfig holds the Redis backend settings.
type RedisCacheConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheConfig selects and tunes the cache layer.
type CacheConfig struct {
	Backend         string            `yaml:"backend"`
	Group           string            `yaml:"group"`
	DefaultTTL      time.Duration     `yaml:"default_ttl"`
	ListingTTL      time.Duration     `yaml:"listing_ttl"`
	NoCacheContexts []string          `yaml:"no_cache_contexts"`
	Memory          MemoryCacheConfig `yaml:"memory"`
	Redis           RedisCacheConfig  `yaml:"redis"`
}

// Config is the application configuration root.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Cache  CacheConfig  `yaml:"cache"`
}

// Default returns a Config populated with development defaults. The
// token secret is intentionally empty and must be provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Auth: AuthConfig{
			TokenTTL:       12 * time.Hour,
			ReadCapability: "read",
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			Group:      "dtengine",
			DefaultTTL: time.Hour,
			ListingTTL: 5 * time.Minute,
			Memory: MemoryCacheConfig{
				Capacity:           10000,
				Shards:             64,
				EvictionPercentage: 10,
			},
			Redis: RedisCacheConfig{
				Addr:        "127.0.0.1:6379",
				DialTimeout: 5 * time.Second,
			},
		},
	}
}

// Load reads a yaml file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q",
			BackendMemory, BackendRedis, c.Cache.Backend)
	}
	if c.Cache.Backend == BackendRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be greater than 0")
	}
	if c.Cache.ListingTTL <= 0 {
		return fmt.Errorf("cache.listing_ttl must be greater than 0")
	}
	return nil
}
