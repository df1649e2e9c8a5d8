package di_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/datatable"
	"github.com/goliatone/go-datatable-engine/dispatch"
	"github.com/goliatone/go-datatable-engine/internal/config"
	"github.com/goliatone/go-datatable-engine/pkg/di"
	"github.com/goliatone/go-datatable-engine/pkg/testsupport"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.TokenSecret = "container-test-secret"
	return cfg
}

func adminAuthenticator() dispatch.Authenticator {
	return dispatch.AuthenticatorFunc(func(*http.Request) (*auth.Principal, error) {
		return &auth.Principal{
			ID:           "admin-1",
			Capabilities: []auth.Capability{auth.CapManage},
		}, nil
	})
}

func TestNew_RequiresValidConfig(t *testing.T) {
	cfg := config.Default() // no token secret
	_, err := di.New(cfg, nil, adminAuthenticator(), nil)
	assert.Error(t, err)
}

func TestContainer_EndToEndListing(t *testing.T) {
	db := testsupport.OpenListingDB(t)
	testsupport.SeedCustomers(t, db, 25)

	container, err := di.New(testConfig(), db, adminAuthenticator(), nil)
	require.NoError(t, err)

	_, err = container.RegisterModel("customers", datatable.Schema{
		Table:    "customers",
		IDColumn: "id",
		Columns: []datatable.ColumnSpec{
			{Name: "name", Searchable: true, Sortable: true},
			{Name: "email", Searchable: true, Sortable: true},
			{Name: "status"},
		},
		StatusColumn: "status",
		ActiveValue:  "active",
	})
	require.NoError(t, err)

	token, err := container.TokenIssuer().Issue(dispatch.TokenScope)
	require.NoError(t, err)

	form := url.Values{
		"action":   {"customers"},
		"security": {token},
		"draw":     {"1"},
		"start":    {"0"},
		"length":   {"10"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	rr := httptest.NewRecorder()
	container.Dispatcher().Routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var env dispatch.Envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.True(t, env.Success, "envelope: %+v", env)

	page, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, page["draw"])
	assert.EqualValues(t, 25, page["recordsTotal"])
	assert.EqualValues(t, 25, page["recordsFiltered"])
	rows, ok := page["data"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 10)
}

func TestContainer_ModelsShareTheCacheManager(t *testing.T) {
	db := testsupport.OpenListingDB(t)
	testsupport.SeedCustomers(t, db, 5)

	container, err := di.New(testConfig(), db, adminAuthenticator(), nil)
	require.NoError(t, err)

	model, err := container.RegisterModel("customers", datatable.Schema{
		Table:    "customers",
		IDColumn: "id",
		Columns:  []datatable.ColumnSpec{{Name: "name", Searchable: true, Sortable: true}},
	})
	require.NoError(t, err)
	require.NotNil(t, model)
	require.NotNil(t, container.CacheManager())
	require.NotNil(t, container.Registry())
}
