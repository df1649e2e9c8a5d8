// Package cache provides deterministic cache key derivation, TTL
// management and prefix-based invalidation over a generic key-value
// store.
//
// # Overview
//
// Two layers live here:
//
//   - Store: the leaf get/set/delete abstraction with group scoping and
//     TTL, backed by an external cache service (see internal/cacheinfra
//     for the in-memory and Redis backends).
//   - Manager: builds keys from variadic components, caches listing
//     pages under the full parameter tuple, and performs prefix-based
//     bulk invalidation when a write cannot know the exact cached
//     key set.
//
// # Key derivation
//
// Keys are a pure function of a cache type tag plus all
// query-affecting parameters. BuildKey drops empty components, joins
// the rest with KeySeparator and, past MaxKeyLength, truncates to a
// safe prefix plus an xxhash digest of the full string. Identical
// inputs always collide on the same key; differing inputs keep
// distinct keys.
//
// # Miss sentinel
//
// Reads return (value, ok). ok == false is the miss sentinel and is
// never conflated with a cached empty result: a stored nil, false or
// empty page reads back with ok == true.
//
// # Listing caches
//
// Listing pages are keyed by listing context, caller access scope,
// pagination, sort and digests of the search term and extra filter
// map. The access scope is part of the key because two callers with
// different visibility must never share a cached page. Listing TTLs
// stay on the order of minutes; contexts on the configured opt-out
// list bypass caching entirely.
//
// # Failure policy
//
// Store failures are swallowed by the backends and read as misses.
// Nothing in this package surfaces a cache error to its caller.
package cache
