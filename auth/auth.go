// Package auth defines the explicit authorization context threaded
// through dispatch, handlers and permission checks. It replaces
// implicit "current user" lookups so authorization stays testable in
// isolation.
package auth

// Capability is a named permission a principal may or may not hold.
type Capability string

// Capabilities used by the engine's default policy and the generated
// action descriptors. Entity modules may define their own.
const (
	CapRead   Capability = "read"
	CapEdit   Capability = "edit"
	CapDelete Capability = "delete"
	CapManage Capability = "manage"
)

// Principal is the authenticated identity performing a request.
// Resolution of principals is delegated to an external identity
// provider; this layer only consumes the result.
type Principal struct {
	ID           string
	Name         string
	Capabilities []Capability
}

// Can reports whether the principal holds the capability. Holding
// CapManage implies every other capability.
func (p *Principal) Can(c Capability) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Capabilities {
		if held == c || held == CapManage {
			return true
		}
	}
	return false
}

// Context is the per-request authorization context. It is immutable
// for the duration of one dispatch call.
type Context struct {
	Principal *Principal

	// Scope identifies the caller's visibility class for cache key
	// derivation. Two callers with different scopes never share a
	// cached listing page. Empty scope falls back to the principal ID.
	Scope string
}

// Authenticated reports whether an active principal is present.
func (c Context) Authenticated() bool {
	return c.Principal != nil
}

// Can reports whether the context's principal holds the capability.
func (c Context) Can(cap Capability) bool {
	return c.Principal.Can(cap)
}

// CacheScope returns the scope component used in listing cache keys.
func (c Context) CacheScope() string {
	if c.Scope != "" {
		return c.Scope
	}
	if c.Principal != nil && c.Principal.ID != "" {
		return c.Principal.ID
	}
	return "anon"
}
