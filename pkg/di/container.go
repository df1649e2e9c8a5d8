// Package di wires the cache store, cache manager, extension registry
// and request dispatcher into one composition root. All registries are
// constructed here explicitly and injected; nothing in the engine
// relies on lazy static singletons.
package di

import (
	"fmt"
	"log/slog"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/cache"
	"github.com/goliatone/go-datatable-engine/datatable"
	"github.com/goliatone/go-datatable-engine/dispatch"
	"github.com/goliatone/go-datatable-engine/extension"
	"github.com/goliatone/go-datatable-engine/internal/cacheinfra"
	"github.com/goliatone/go-datatable-engine/internal/config"
	"github.com/goliatone/go-datatable-engine/repositorycache"
)

// Container holds the singleton engine components.
type Container struct {
	cfg        config.Config
	db         *bun.DB
	store      cache.Store
	manager    *cache.Manager
	registry   *extension.Registry
	verifier   *dispatch.HS256Verifier
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
}

// New builds the engine from configuration. The database handle and
// the authenticator are external collaborators supplied by the host
// application.
func New(cfg config.Config, db *bun.DB, authn dispatch.Authenticator, log *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	store, err := newStore(cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	manager, err := cache.NewManager(store, cache.Config{
		Group:           cfg.Cache.Group,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		ListingTTL:      cfg.Cache.ListingTTL,
		NoCacheContexts: cfg.Cache.NoCacheContexts,
		KnownTypes:      []string{cache.TypeListing, cache.TypeEntity, cache.TypeStats},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("cache manager: %w", err)
	}

	registry := extension.NewRegistry(log)

	verifier, err := dispatch.NewHS256Verifier(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}

	dispatcher := dispatch.New(verifier, authn, registry,
		dispatch.WithDebug(cfg.Server.Debug),
		dispatch.WithReadCapability(readCapability(cfg)),
		dispatch.WithLogger(log),
	)

	return &Container{
		cfg:        cfg,
		db:         db,
		store:      store,
		manager:    manager,
		registry:   registry,
		verifier:   verifier,
		dispatcher: dispatcher,
		log:        log,
	}, nil
}

func newStore(cfg config.CacheConfig, log *slog.Logger) (cache.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return cacheinfra.NewRedisStore(cacheinfra.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			Namespace:    cfg.Group,
			DefaultTTL:   cfg.DefaultTTL,
		}, log)
	default:
		return cacheinfra.NewMemoryStore(cacheinfra.Config{
			Capacity:           cfg.Memory.Capacity,
			NumShards:          cfg.Memory.Shards,
			TTL:                cfg.DefaultTTL,
			EvictionPercentage: cfg.Memory.EvictionPercentage,
		}, log)
	}
}

func readCapability(cfg config.Config) auth.Capability {
	if cfg.Auth.ReadCapability != "" {
		return auth.Capability(cfg.Auth.ReadCapability)
	}
	return auth.CapRead
}

// CacheManager returns the singleton cache manager.
func (c *Container) CacheManager() *cache.Manager { return c.manager }

// Registry returns the extension registry shared by every model and
// the dispatcher.
func (c *Container) Registry() *extension.Registry { return c.registry }

// Dispatcher returns the request dispatcher.
func (c *Container) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// TokenIssuer returns the verifier, which also issues page tokens.
func (c *Container) TokenIssuer() *dispatch.HS256Verifier { return c.verifier }

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config { return c.cfg }

// RegisterModel builds the query engine for one entity, wires the
// shared cache and registry into it, and registers it as a dispatch
// action of the same name.
func (c *Container) RegisterModel(name string, schema datatable.Schema, opts ...datatable.Option) (*datatable.Model, error) {
	opts = append([]datatable.Option{
		datatable.WithCache(c.manager),
		datatable.WithLogger(c.log),
	}, opts...)

	model, err := datatable.NewModel(c.db, name, schema, c.registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	c.dispatcher.Register(name, func() any { return model })
	return model, nil
}

// NewCachedRepository wraps a base repository so its writes invalidate
// the listing cache space named by listingCtx.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], listingCtx string, ttl time.Duration) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, c.manager, listingCtx, ttl)
}
