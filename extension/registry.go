// Package extension implements named, ordered callback chains that let
// independently loaded modules contribute query fragments and response
// post-processing without knowing about each other.
package extension

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Callback is one contribution registered against an extension point.
// It receives the accumulator and returns its replacement. Returning an
// error or a nil accumulator skips the contribution: a failing module
// degrades the result rather than failing the whole operation.
type Callback func(ctx context.Context, acc any) (any, error)

type registration struct {
	priority int
	seq      int
	fn       Callback
}

// Registry stores an ordered callback chain per named extension point.
// It is owned by the application composition root and passed by
// reference into each consumer; there is no ambient global dispatch.
type Registry struct {
	mu     sync.RWMutex
	points map[string][]registration
	seq    int
	log    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		points: make(map[string][]registration),
		log:    log,
	}
}

// Register adds a callback to the named point. Callbacks run in
// ascending priority order; equal priorities keep registration order.
func (r *Registry) Register(point string, priority int, fn Callback) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	regs := append(r.points[point], registration{priority: priority, seq: r.seq, fn: fn})
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority < regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	r.points[point] = regs
}

// Has reports whether any callback is registered against the point.
func (r *Registry) Has(point string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points[point]) > 0
}

// Fold applies every callback registered against the point as a
// left-fold over acc. Erroring callbacks are skipped and the previous
// accumulator is kept.
func (r *Registry) Fold(ctx context.Context, point string, acc any) any {
	r.mu.RLock()
	regs := make([]registration, len(r.points[point]))
	copy(regs, r.points[point])
	r.mu.RUnlock()

	for _, reg := range regs {
		next, err := reg.fn(ctx, acc)
		if err != nil {
			r.log.Debug("extension callback skipped", "point", point, "error", err)
			continue
		}
		if next == nil {
			continue
		}
		acc = next
	}
	return acc
}

// On registers a typed callback against the point. A fold whose
// accumulator is not a T skips the callback, which keeps one module's
// type mismatch from corrupting another module's contribution.
func On[T any](r *Registry, point string, priority int, fn func(ctx context.Context, acc T) (T, error)) {
	r.Register(point, priority, func(ctx context.Context, acc any) (any, error) {
		typed, ok := acc.(T)
		if !ok {
			return nil, fmt.Errorf("extension point %q: accumulator is %T, not %T", point, acc, typed)
		}
		return fn(ctx, typed)
	})
}
