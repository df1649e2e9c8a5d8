package cache

import "time"

// Well-known cache type tags. Clear and ClearAll fall back to this set
// when the backing store cannot enumerate its keys, so new cache types
// should register themselves via Config.KnownTypes.
const (
	TypeListing = "listing"
	TypeEntity  = "entity"
	TypeStats   = "stats"
)

// Config exposes Manager configuration options.
type Config struct {
	// Group namespaces every key this Manager derives, so multiple
	// managers can share one backend without colliding.
	Group string

	// DefaultTTL applies to Set calls that do not specify a TTL.
	DefaultTTL time.Duration

	// ListingTTL applies to cached listing pages. Listings mutate
	// frequently, so this should stay on the order of minutes.
	ListingTTL time.Duration

	// NoCacheContexts lists listing contexts that bypass caching
	// entirely, for views that must always be fresh.
	NoCacheContexts []string

	// KnownTypes is the set of cache type prefixes ClearAll walks when
	// the store does not support key enumeration.
	KnownTypes []string
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Group:      "dtengine",
		DefaultTTL: time.Hour,
		ListingTTL: 5 * time.Minute,
		KnownTypes: []string{TypeListing, TypeEntity, TypeStats},
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.Group == "" {
		return &ConfigError{Field: "Group", Message: "must not be empty"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.ListingTTL <= 0 {
		return &ConfigError{Field: "ListingTTL", Message: "must be greater than 0"}
	}
	return nil
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
