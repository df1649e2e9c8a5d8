package cache

import (
	"context"
	"time"
)

// Store is the generic key-value backend the Manager builds on.
// Implementations are externally synchronized services (in-memory shard
// cache, Redis, ...); the Manager never takes locks on their behalf.
//
// The boolean result of Get is the miss sentinel: false means "not
// cached", which is distinct from a legitimately cached nil or false
// value (those come back with ok == true). Backend failures are never
// surfaced; an implementation logs them and reports a miss.
type Store interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)

	// ScanKeys enumerates every live key in the store. Backends that
	// cannot enumerate return ok == false; the Manager then falls back
	// to its own keys-by-prefix index.
	ScanKeys(ctx context.Context) (keys []string, ok bool)
}

// FetchFn is the function signature GetOrFetch expects when fetching
// from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// GetOrFetch is a type-safe read-through helper over a Manager. A miss,
// or a cached value of the wrong type, executes fetchFn and stores the
// result under the derived key with the given TTL.
//
// There is no single-flight guarantee: two concurrent misses for the
// same key may both execute fetchFn and both write the same value.
func GetOrFetch[T any](ctx context.Context, m *Manager, typ string, ttl time.Duration, fetchFn FetchFn[T], components ...string) (T, error) {
	if v, ok := m.Get(ctx, typ, components...); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	value, err := fetchFn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	m.Set(ctx, typ, value, ttl, components...)
	return value, nil
}
