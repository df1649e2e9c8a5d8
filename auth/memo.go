package auth

import "context"

// RelationMemo memoizes relation and permission lookups for exactly
// one dispatch call. It is a plain in-process map, deliberately a
// different type with a different lifetime than the persistent cache
// layer: its contents never outlive the request that created it.
type RelationMemo struct {
	m map[string]bool
}

// NewRelationMemo creates an empty per-request memo.
func NewRelationMemo() *RelationMemo {
	return &RelationMemo{m: make(map[string]bool)}
}

// Lookup returns the memoized result for key, computing and storing it
// on first use. Not safe for concurrent use; one request is handled by
// one worker.
func (r *RelationMemo) Lookup(key string, compute func() bool) bool {
	if v, ok := r.m[key]; ok {
		return v
	}
	v := compute()
	r.m[key] = v
	return v
}

// Len reports how many relations have been memoized.
func (r *RelationMemo) Len() int {
	return len(r.m)
}

type relationMemoKey struct{}

// WithRelationMemo attaches a per-request memo to the context.
func WithRelationMemo(ctx context.Context, memo *RelationMemo) context.Context {
	return context.WithValue(ctx, relationMemoKey{}, memo)
}

// RelationMemoFromContext extracts the request's memo, if any.
func RelationMemoFromContext(ctx context.Context) (*RelationMemo, bool) {
	memo, ok := ctx.Value(relationMemoKey{}).(*RelationMemo)
	return memo, ok
}
