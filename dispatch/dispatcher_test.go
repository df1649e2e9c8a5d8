package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/datatable"
	"github.com/goliatone/go-datatable-engine/extension"
)

type stubProvider struct {
	page     *datatable.ResultPage
	err      error
	panicMsg string

	gotMemo bool
}

func (s *stubProvider) GetData(ctx context.Context, _ auth.Context, req datatable.Request) (*datatable.ResultPage, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	_, s.gotMemo = auth.RelationMemoFromContext(ctx)
	if s.err != nil {
		return nil, s.err
	}
	page := *s.page
	page.Draw = req.Draw
	return &page, nil
}

func readerPrincipal(*http.Request) (*auth.Principal, error) {
	return &auth.Principal{ID: "u-1", Capabilities: []auth.Capability{auth.CapRead}}, nil
}

func newTestDispatcher(t *testing.T, authn Authenticator, provider any, opts ...DispatcherOption) (*Dispatcher, *HS256Verifier, *extension.Registry) {
	t.Helper()

	verifier, err := NewHS256Verifier("test-secret", time.Hour)
	require.NoError(t, err)

	registry := extension.NewRegistry(nil)
	d := New(verifier, authn, registry, opts...)
	if provider != nil {
		d.Register("customers", func() any { return provider })
	}
	return d, verifier, registry
}

func listingForm(t *testing.T, verifier *HS256Verifier, action string) url.Values {
	t.Helper()

	token, err := verifier.Issue(TokenScope)
	require.NoError(t, err)
	return url.Values{
		"action":   {action},
		"security": {token},
		"draw":     {"1"},
		"start":    {"0"},
		"length":   {"10"},
	}
}

func post(t *testing.T, d *Dispatcher, form url.Values, xhr bool) (int, Envelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if xhr {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, req)

	var env Envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return rr.Code, env
}

func failureMessage(t *testing.T, env Envelope) string {
	t.Helper()

	payload, ok := env.Data.(map[string]any)
	require.True(t, ok, "failure data must be an error payload, got %T", env.Data)
	msg, _ := payload["message"].(string)
	return msg
}

func TestDispatcher_Success(t *testing.T) {
	provider := &stubProvider{page: &datatable.ResultPage{
		RecordsTotal:    25,
		RecordsFiltered: 5,
		Rows:            []datatable.Row{{"name": "customer-01"}},
	}}
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), provider)

	code, env := post(t, d, listingForm(t, verifier, "customers"), true)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	page, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, page["draw"])
	assert.EqualValues(t, 25, page["recordsTotal"])
	assert.EqualValues(t, 5, page["recordsFiltered"])
	assert.True(t, provider.gotMemo, "a relation memo must be attached per dispatch")
}

func TestDispatcher_RejectsNonAsynchronousRequests(t *testing.T) {
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal),
		&stubProvider{page: &datatable.ResultPage{}})

	code, env := post(t, d, listingForm(t, verifier, "customers"), false)
	assert.Equal(t, http.StatusOK, code, "failures still answer 200")
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid request.", failureMessage(t, env))
}

func TestDispatcher_RejectsBadToken(t *testing.T) {
	d, _, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal),
		&stubProvider{page: &datatable.ResultPage{}})

	form := url.Values{"action": {"customers"}, "security": {"forged"}}
	_, env := post(t, d, form, true)
	assert.False(t, env.Success)
	assert.Equal(t, "Authentication required.", failureMessage(t, env))
}

func TestDispatcher_RejectsMissingPrincipal(t *testing.T) {
	authn := AuthenticatorFunc(func(*http.Request) (*auth.Principal, error) {
		return nil, nil
	})
	d, verifier, _ := newTestDispatcher(t, authn, &stubProvider{page: &datatable.ResultPage{}})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.False(t, env.Success)
	assert.Equal(t, "Authentication required.", failureMessage(t, env))
}

func TestDispatcher_RejectsMissingCapability(t *testing.T) {
	authn := AuthenticatorFunc(func(*http.Request) (*auth.Principal, error) {
		return &auth.Principal{ID: "u-2"}, nil
	})
	d, verifier, _ := newTestDispatcher(t, authn, &stubProvider{page: &datatable.ResultPage{}})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.False(t, env.Success)
	assert.Equal(t, "You are not allowed to perform this action.", failureMessage(t, env))
}

func TestDispatcher_AuthorizationIsAnExtensionPoint(t *testing.T) {
	authn := AuthenticatorFunc(func(*http.Request) (*auth.Principal, error) {
		return &auth.Principal{ID: "u-2"}, nil
	})
	d, verifier, registry := newTestDispatcher(t, authn, &stubProvider{page: &datatable.ResultPage{}})

	extension.On(registry, AuthorizePoint("customers"), 10,
		func(_ context.Context, dec *AuthorizeDecision) (*AuthorizeDecision, error) {
			dec.Allowed = dec.Auth.Authenticated()
			return dec, nil
		})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.True(t, env.Success, "an extension may relax the default decision")
}

func TestDispatcher_UnknownAction(t *testing.T) {
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), nil)

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid request.", failureMessage(t, env))
}

func TestDispatcher_HandlerMustImplementContract(t *testing.T) {
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), struct{}{})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid request.", failureMessage(t, env))
}

func TestDispatcher_ExecutionFailure(t *testing.T) {
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal),
		&stubProvider{err: errors.New("connection refused")})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.False(t, env.Success)
	assert.Equal(t, "The request could not be completed.", failureMessage(t, env))
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal),
		&stubProvider{panicMsg: "boom"})

	code, env := post(t, d, listingForm(t, verifier, "customers"), true)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, env.Success)
	assert.Equal(t, "The request could not be completed.", failureMessage(t, env))
}

func TestDispatcher_DebugDetail(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}

	t.Run("disabled", func(t *testing.T) {
		d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), provider)
		_, env := post(t, d, listingForm(t, verifier, "customers"), true)
		payload := env.Data.(map[string]any)
		assert.NotContains(t, payload, "debug")
	})

	t.Run("enabled", func(t *testing.T) {
		d, verifier, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), provider, WithDebug(true))
		_, env := post(t, d, listingForm(t, verifier, "customers"), true)
		payload := env.Data.(map[string]any)
		assert.Contains(t, payload["debug"], "connection refused")
	})
}

func TestDispatcher_ResponsePostProcessing(t *testing.T) {
	d, verifier, registry := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal),
		&stubProvider{page: &datatable.ResultPage{RecordsTotal: 25}})

	registry.Register(ResponsePoint("customers"), 10, func(_ context.Context, acc any) (any, error) {
		page, ok := acc.(*datatable.ResultPage)
		if !ok {
			return nil, errors.New("unexpected payload")
		}
		return map[string]any{"page": page, "annotated": true}, nil
	})

	_, env := post(t, d, listingForm(t, verifier, "customers"), true)
	require.True(t, env.Success)
	payload := env.Data.(map[string]any)
	assert.Equal(t, true, payload["annotated"])
}

func TestDispatcher_MalformedBody(t *testing.T) {
	d, _, _ := newTestDispatcher(t, AuthenticatorFunc(readerPrincipal), nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, req)

	var env Envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.False(t, env.Success)
}
