// Package dispatch validates inbound tabular requests, resolves the
// target query model and emits a uniform JSON response envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/datatable"
	"github.com/goliatone/go-datatable-engine/extension"
)

// AuthorizePoint names the extension point that can override the
// default authorization check for one action.
func AuthorizePoint(action string) string { return "dispatch.authorize." + action }

// ResponsePoint names the post-processing extension point run over a
// successful payload before the envelope is emitted.
func ResponsePoint(action string) string { return "dispatch.response." + action }

// DataProvider is the contract a resolved handler must expose.
type DataProvider interface {
	GetData(ctx context.Context, authCtx auth.Context, req datatable.Request) (*datatable.ResultPage, error)
}

// HandlerFactory produces the handler for one dispatched action. The
// result must implement DataProvider; the dispatcher verifies that at
// dispatch time and fails the request otherwise.
type HandlerFactory func() any

// Authenticator resolves the caller's principal. Identity mechanics
// are delegated to an external provider; returning a nil principal
// means the caller is not authenticated.
type Authenticator interface {
	Authenticate(r *http.Request) (*auth.Principal, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(r *http.Request) (*auth.Principal, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (*auth.Principal, error) {
	return f(r)
}

// AuthorizeDecision is the accumulator folded through an action's
// authorization extension point. Modules may tighten or relax the
// default minimal-read decision for their own handlers.
type AuthorizeDecision struct {
	Request    datatable.Request
	Auth       auth.Context
	Capability auth.Capability
	Allowed    bool
}

// Envelope is the uniform response shape: exactly one is emitted per
// call, for success and failure alike.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorPayload is the failure envelope body.
type ErrorPayload struct {
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

// Dispatcher validates requests, resolves handlers and emits
// envelopes. Nothing escapes its boundary: every failure, including a
// handler panic, converts into the failure envelope.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFactory

	verifier TokenVerifier
	authn    Authenticator
	registry *extension.Registry
	readCap  auth.Capability
	debug    bool
	log      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDebug includes full error detail in failure envelopes. Never
// enable outside development.
func WithDebug(debug bool) DispatcherOption {
	return func(d *Dispatcher) { d.debug = debug }
}

// WithReadCapability overrides the capability the default
// authorization policy requires.
func WithReadCapability(cap auth.Capability) DispatcherOption {
	return func(d *Dispatcher) { d.readCap = cap }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// New creates a Dispatcher.
func New(verifier TokenVerifier, authn Authenticator, registry *extension.Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFactory),
		verifier: verifier,
		authn:    authn,
		registry: registry,
		readCap:  auth.CapRead,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds an action name to a handler factory. Registering the
// same action twice replaces the factory.
func (d *Dispatcher) Register(action string, factory HandlerFactory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = factory
}

// Routes returns a chi router exposing the dispatch endpoint.
func (d *Dispatcher) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", d.ServeHTTP)
	return r
}

// ServeHTTP parses the wire request, runs the dispatch pipeline and
// writes exactly one JSON envelope. The HTTP status is always 200; the
// envelope's success flag carries the outcome, matching the admin-ajax
// convention the tabular clients expect.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		d.writeEnvelope(w, d.failure(NewError(KindValidation, "malformed request body")))
		return
	}

	req := datatable.ParseRequest(r.Form)
	env := d.dispatch(r, req)
	d.writeEnvelope(w, env)
}

// dispatch runs the fail-fast validation sequence and handler
// execution. Each failure short-circuits with a typed error.
func (d *Dispatcher) dispatch(r *http.Request, req datatable.Request) (env Envelope) {
	ctx := auth.WithRelationMemo(r.Context(), auth.NewRelationMemo())

	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("handler panic recovered", "action", req.Action, "panic", rec)
			env = d.failure(NewError(KindExecution, fmt.Sprintf("handler panic: %v", rec)))
		}
	}()

	// 1. Expected out-of-band request, not a direct page load.
	if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		return d.failure(NewError(KindValidation, "not an asynchronous request"))
	}

	// 2. Per-session security token for this action class.
	if err := d.verifier.Verify(ctx, req.Token, req.Action); err != nil {
		return d.failure(WrapError(KindAuthentication, "invalid security token", err))
	}

	// 3. Active principal.
	principal, err := d.authn.Authenticate(r)
	if err != nil || principal == nil {
		return d.failure(WrapError(KindAuthentication, "no active principal", err))
	}
	authCtx := auth.Context{Principal: principal}

	// 4. Authorization: minimal read capability by default, but the
	// decision itself is an extension point.
	if !d.authorize(ctx, authCtx, req) {
		return d.failure(NewError(KindAuthorization,
			fmt.Sprintf("principal lacks capability %q", d.readCap)))
	}

	// 5. Resolve the handler and check the data provider contract.
	provider, derr := d.resolveProvider(req.Action)
	if derr != nil {
		return d.failure(derr)
	}

	// 6. Execute.
	page, err := provider.GetData(ctx, authCtx, req)
	if err != nil {
		d.log.Error("listing execution failed", "action", req.Action, "error", err)
		return d.failure(WrapError(KindExecution, "listing execution failed", err))
	}

	// 7. Post-processing fold before the envelope is emitted.
	var payload any = page
	if d.registry != nil {
		payload = d.registry.Fold(ctx, ResponsePoint(req.Action), payload)
	}

	return Envelope{Success: true, Data: payload}
}

func (d *Dispatcher) authorize(ctx context.Context, authCtx auth.Context, req datatable.Request) bool {
	decision := &AuthorizeDecision{
		Request:    req,
		Auth:       authCtx,
		Capability: d.readCap,
		Allowed:    authCtx.Can(d.readCap),
	}
	if d.registry == nil {
		return decision.Allowed
	}

	out := d.registry.Fold(ctx, AuthorizePoint(req.Action), decision)
	if folded, ok := out.(*AuthorizeDecision); ok {
		return folded.Allowed
	}
	return decision.Allowed
}

func (d *Dispatcher) resolveProvider(action string) (DataProvider, *Error) {
	if action == "" {
		return nil, NewError(KindValidation, "missing action")
	}

	d.mu.RLock()
	factory, ok := d.handlers[action]
	d.mu.RUnlock()
	if !ok {
		return nil, NewError(KindValidation, fmt.Sprintf("unknown action %q", action))
	}

	handler := factory()
	provider, ok := handler.(DataProvider)
	if !ok {
		return nil, NewError(KindValidation,
			fmt.Sprintf("handler for %q does not implement the data provider contract", action))
	}
	return provider, nil
}

// failure converts a typed error into the failure envelope. The
// generic category message is always used; detail is attached only
// when debug is enabled.
func (d *Dispatcher) failure(err *Error) Envelope {
	payload := ErrorPayload{Message: err.Kind.publicMessage()}
	if d.debug {
		payload.Debug = err.Error()
	}
	return Envelope{Success: false, Data: payload}
}

func (d *Dispatcher) writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(env); err != nil {
		d.log.Error("envelope encoding failed", "error", err)
	}
}
