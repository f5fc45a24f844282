package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozo-systems/policyd/internal/obslog"
	"github.com/kozo-systems/policyd/internal/policy"
)

func testLogger() *obslog.Logger { return obslog.New("policyd-test", "error", "json") }

func TestServer_Healthz(t *testing.T) {
	store := policy.NewGrantStore(8, 8, 8, policy.SystemClock{})
	srv := NewServer(store, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestServer_AuditRecentReturnsJSONEvents(t *testing.T) {
	store := policy.NewGrantStore(8, 8, 8, policy.SystemClock{})
	id := policy.FromBadge(5)
	name, err := policy.NewClearName("camera.use")
	require.NoError(t, err)
	require.NoError(t, store.Grant(id, name, nil))

	srv := NewServer(store, testLogger())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/audit/recent?count=10", nil)
	srv.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var dtos []auditEventDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dtos))
	require.NotEmpty(t, dtos)
	assert.Equal(t, "camera.use", dtos[len(dtos)-1].ClearName)
	assert.Equal(t, "grant", dtos[len(dtos)-1].Action)
}

func TestServer_AuditRecentDefaultsCountWhenMissing(t *testing.T) {
	store := policy.NewGrantStore(8, 8, 8, policy.SystemClock{})
	srv := NewServer(store, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/audit/recent", nil)
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_AppGrantsListsObservableNames(t *testing.T) {
	store := policy.NewGrantStore(8, 8, 8, policy.SystemClock{})
	id := policy.FromBadge(42)
	name, err := policy.NewClearName("network.outbound")
	require.NoError(t, err)
	require.NoError(t, store.Grant(id, name, nil))

	srv := NewServer(store, testLogger())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/apps/42/grants", nil)
	srv.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &names))
	assert.Contains(t, names, "network.outbound")
}

func TestServer_AppGrantsRejectsNonNumericIdentity(t *testing.T) {
	store := policy.NewGrantStore(8, 8, 8, policy.SystemClock{})
	srv := NewServer(store, testLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/apps/not-a-number/grants", nil)
	srv.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
