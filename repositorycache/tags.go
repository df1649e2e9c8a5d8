package repositorycache

import "context"

type invalidationContextsKey struct{}

// WithInvalidationContexts attaches extra listing contexts to the
// context. A write through a CachedRepository invalidates those
// contexts in addition to its own, which covers listings that join
// across entities.
func WithInvalidationContexts(ctx context.Context, contexts ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(contexts) == 0 {
		return ctx
	}

	combined := dedupeStrings(append(invalidationContextsFrom(ctx), contexts...))
	if len(combined) == 0 {
		return ctx
	}
	return context.WithValue(ctx, invalidationContextsKey{}, combined)
}

func invalidationContextsFrom(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if contexts, ok := ctx.Value(invalidationContextsKey{}).([]string); ok {
		return append([]string(nil), contexts...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
