package cache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ListingParams carries every request parameter that affects a cached
// listing page. All of them fold into the cache key: omitting any one
// would let two distinct result sets silently collide.
type ListingParams struct {
	Start       int
	Length      int
	Search      string
	OrderColumn int
	OrderDir    string
	Filters     map[string]any
}

func (p ListingParams) components(serializer *ValueSerializer) []string {
	parts := []string{
		strconv.Itoa(p.Start),
		strconv.Itoa(p.Length),
		strconv.Itoa(p.OrderColumn),
		p.OrderDir,
	}
	if p.Search != "" {
		parts = append(parts, "s"+Digest(p.Search))
	}
	if len(p.Filters) > 0 {
		parts = append(parts, "f"+Digest(serializer.SerializeFilters(p.Filters)))
	}
	return parts
}

// Manager derives deterministic keys over a Store and layers listing
// specific caching and prefix-based bulk invalidation on top.
//
// Besides the store itself, the Manager maintains a keys-by-prefix
// index updated on every Set. Prefix invalidation prefers the store's
// native enumeration and falls back to the index, so it never depends
// on introspecting a backend's private structure.
type Manager struct {
	store      Store
	serializer *ValueSerializer
	cfg        Config
	noCache    map[string]struct{}
	keys       sync.Map
	now        func() time.Time
	log        *slog.Logger
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, cfg Config, log *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	noCache := make(map[string]struct{}, len(cfg.NoCacheContexts))
	for _, c := range cfg.NoCacheContexts {
		noCache[c] = struct{}{}
	}

	return &Manager{
		store:      store,
		serializer: NewValueSerializer(),
		cfg:        cfg,
		noCache:    noCache,
		now:        time.Now,
		log:        log,
	}, nil
}

// Key derives the full backend key for a type tag plus components,
// including the manager's group prefix. The group folds into BuildKey
// with everything else so the MaxKeyLength bound holds for the final
// backend key, not just the suffix after the group.
func (m *Manager) Key(typ string, components ...string) string {
	parts := make([]string, 0, len(components)+1)
	parts = append(parts, typ)
	parts = append(parts, components...)
	return BuildKey(m.cfg.Group, parts...)
}

// Get returns the cached value for the derived key. The second result
// is the miss sentinel: false means not cached, distinguishable from a
// cached nil or false value.
func (m *Manager) Get(ctx context.Context, typ string, components ...string) (any, bool) {
	return m.store.Get(ctx, m.Key(typ, components...))
}

// Set stores value under the derived key. A non-positive ttl uses the
// manager's default TTL.
func (m *Manager) Set(ctx context.Context, typ string, value any, ttl time.Duration, components ...string) {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	key := m.Key(typ, components...)
	m.store.Set(ctx, key, value, ttl)
	m.keys.Store(key, m.now().Add(ttl))
}

// Delete removes the exact derived key.
func (m *Manager) Delete(ctx context.Context, typ string, components ...string) {
	key := m.Key(typ, components...)
	m.store.Delete(ctx, key)
	m.keys.Delete(key)
}

// Cacheable reports whether the given listing context participates in
// caching. Contexts in the configured opt-out list always read fresh.
func (m *Manager) Cacheable(listingCtx string) bool {
	_, skip := m.noCache[listingCtx]
	return !skip
}

// Listing returns the cached page for one listing context, access
// scope and parameter tuple. Two callers with different visibility
// never share a page because the scope is part of the key.
func (m *Manager) Listing(ctx context.Context, listingCtx, scope string, params ListingParams) (any, bool) {
	if !m.Cacheable(listingCtx) {
		return nil, false
	}
	return m.Get(ctx, TypeListing, m.listingComponents(listingCtx, scope, params)...)
}

// StoreListing caches a listing page under the full parameter tuple
// with the short listing TTL.
func (m *Manager) StoreListing(ctx context.Context, listingCtx, scope string, params ListingParams, page any) {
	if !m.Cacheable(listingCtx) {
		return
	}
	m.Set(ctx, TypeListing, page, m.cfg.ListingTTL, m.listingComponents(listingCtx, scope, params)...)
}

// InvalidateListing removes every cached page for the listing context,
// regardless of scope, pagination, sort or search. The triggering
// write cannot know which combinations were cached, so this is a
// prefix sweep over the context's key space.
func (m *Manager) InvalidateListing(ctx context.Context, listingCtx string) {
	m.invalidateByPrefix(ctx, m.Key(TypeListing, listingCtx)+KeySeparator)
}

// InvalidateListingExact removes the single page cached for the exact
// scope and parameter tuple.
func (m *Manager) InvalidateListingExact(ctx context.Context, listingCtx, scope string, params ListingParams) {
	m.Delete(ctx, TypeListing, m.listingComponents(listingCtx, scope, params)...)
}

// Invalidate performs a prefix sweep over one cache type narrowed by
// leading key components, for writes that cannot know the exact cached
// key set.
func (m *Manager) Invalidate(ctx context.Context, typ string, components ...string) {
	m.invalidateByPrefix(ctx, m.Key(typ, components...)+KeySeparator)
}

// Clear removes every key of one cache type.
func (m *Manager) Clear(ctx context.Context, typ string) {
	m.invalidateByPrefix(ctx, m.Key(typ)+KeySeparator)
}

// ClearAll removes every key this manager's group owns. Without store
// enumeration it walks the registered known cache type prefixes using
// the manager's own key index.
func (m *Manager) ClearAll(ctx context.Context) {
	if keys, ok := m.store.ScanKeys(ctx); ok {
		prefix := m.cfg.Group + KeySeparator
		for _, key := range keys {
			if strings.HasPrefix(key, prefix) {
				m.store.Delete(ctx, key)
				m.keys.Delete(key)
			}
		}
		return
	}

	for _, typ := range m.cfg.KnownTypes {
		m.Clear(ctx, typ)
	}
}

func (m *Manager) listingComponents(listingCtx, scope string, params ListingParams) []string {
	components := []string{listingCtx, scope}
	return append(components, params.components(m.serializer)...)
}

func (m *Manager) invalidateByPrefix(ctx context.Context, prefix string) {
	keys, ok := m.store.ScanKeys(ctx)
	if !ok {
		keys = m.indexedKeys()
	}

	removed := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		m.store.Delete(ctx, key)
		m.keys.Delete(key)
		removed++
	}
	m.log.Debug("cache prefix invalidation", "prefix", prefix, "removed", removed)
}

// indexedKeys returns the live entries of the keys-by-prefix index.
// Entries whose backend TTL has passed are pruned on the way: without
// this the index would grow without bound on stores that cannot
// enumerate, since nothing else ever revisits an expired key.
func (m *Manager) indexedKeys() []string {
	var keys []string
	now := m.now()
	m.keys.Range(func(k, v any) bool {
		key, ok := k.(string)
		if !ok {
			return true
		}
		if deadline, ok := v.(time.Time); ok && now.After(deadline) {
			m.keys.Delete(key)
			return true
		}
		keys = append(keys, key)
		return true
	})
	return keys
}
