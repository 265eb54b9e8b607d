package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/log"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenManager(testJWTSecret, time.Hour, 24*time.Hour)
	userID := uuid.New()
	token, err := tokens.Issue(&auth.User{ID: userID})
	require.NoError(t, err)

	var gotUserID uuid.UUID
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID, _ = userIDFromContext(r.Context())
	})
	handler := authMiddleware(tokens, log.NewNop())(next)

	t.Run("valid bearer token", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.True(t, called)
		assert.Equal(t, userID, gotUserID)
	})

	t.Run("missing token", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		r.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("login is exempt", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.True(t, called)
	})

	t.Run("query parameter fallback for websockets", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/x/progress?access_token="+token, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)
		assert.True(t, called)
		assert.Equal(t, userID, gotUserID)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() { handler.ServeHTTP(w, r) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware()(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	id := w.Header().Get("X-Request-ID")
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := newRateLimiter(0, 2) // no refill: exactly two requests pass

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// Other IPs have their own bucket.
	assert.True(t, rl.allow("10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:1234"
	r.Header.Set("X-Real-IP", "198.51.100.7")
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", clientIP(r, false), "headers ignored without proxy trust")
	assert.Equal(t, "198.51.100.7", clientIP(r, true), "X-Real-IP preferred")

	r.Header.Del("X-Real-IP")
	assert.Equal(t, "203.0.113.5", clientIP(r, true), "first X-Forwarded-For entry")

	r.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "192.0.2.10", clientIP(r, true), "invalid header falls back to RemoteAddr")
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "Bearer abc")
	token, ok := bearerToken(r)
	require.True(t, ok)
	assert.Equal(t, "abc", token)

	r2 := httptest.NewRequest(http.MethodGet, "/?access_token=xyz", nil)
	token, ok = bearerToken(r2)
	require.True(t, ok)
	assert.Equal(t, "xyz", token)
}
