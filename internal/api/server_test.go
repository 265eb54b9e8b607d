package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/agent"
	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/chat"
	"github.com/sunshineDad/poping/internal/log"
	"github.com/sunshineDad/poping/internal/provider"
	"github.com/sunshineDad/poping/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := log.NewNop()
	service := chat.NewService(nil, nil, nil, nil, []provider.Provider{}, 10, logger)

	srv, err := NewServer(ServerConfig{
		Logger:       logger,
		ChatService:  service,
		SessionStore: session.NewStore(nil),
		AgentStore:   agent.NewStore(nil),
		UserStore:    auth.NewStore(nil),
		Tokens:       auth.NewTokenManager(testJWTSecret, time.Hour, 24*time.Hour),
		CORSOrigins:  []string{"http://localhost:5173"},
	})
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiredDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServer_HealthOutsideMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-ID"), "health bypasses the middleware stack")
}

func TestServer_ProtectedRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/sessions"},
		{http.MethodPost, "/api/v1/chat"},
		{http.MethodGet, "/api/v1/agents"},
		{http.MethodGet, "/api/v1/auth/me"},
	}

	for _, rt := range routes {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_UnknownOriginGetsNoCORSHeaders(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	r.Header.Set("Origin", "http://evil.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RefreshExemptFromAuth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"refresh_token":"not-a-jwt"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	// The handler, not the auth middleware, must reject the bad token:
	// invalid_token instead of missing_token proves the route is exempt.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_token", resp.Error)
}

func TestServer_ProviderRoutesAbsentWithoutCatalog(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	// Unauthorized comes first; with a token the route would 404.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_DatasetRoutesAbsentWithoutStore(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))

	// Unauthorized comes first; with a token the route would 404. Just
	// assert the request did not panic and got a response.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
