// Package repositorycache decorates a go-repository-bun repository
// with entity read caching and, more importantly, listing cache
// invalidation on the write path.
//
// The listing engine caches whole result pages keyed by pagination,
// sort, search and caller scope. A write cannot know which of those
// combinations are cached, so every successful create, update, upsert
// or delete triggers a prefix invalidation of the entity's listing
// context (plus any extra contexts attached to the context via
// WithInvalidationContexts) and clears the entity's cached statistics.
//
// Reads by ID or identifier are cached under the entity type when no
// extra criteria are supplied. Criteria-based reads pass through:
// criteria are closures and do not serialize into stable keys across
// processes.
package repositorycache
