package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/config"
	"github.com/sunshineDad/poping/internal/log"
)

func newTestStreamingClient(t *testing.T, handler http.Handler) *StreamingClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewStreamingClient(config.AIGentsConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, log.NewNop())
}

func TestStreamingClient_CreateSession(t *testing.T) {
	t.Parallel()

	var captured createSessionRequest
	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sessions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"success":true,"data":{"session_id":"remote-123"}}`))
	}))

	id, err := client.CreateSession(context.Background(), "user-1", "Be terse")
	require.NoError(t, err)
	assert.Equal(t, "remote-123", id)

	assert.Equal(t, "Be terse", captured.Config.System.SystemPrompt)
	assert.Equal(t, "user-1", captured.Metadata.UserID)
	assert.Equal(t, remoteProjectName, captured.Metadata.ProjectName)
	assert.True(t, captured.Config.Features["memories"])
	assert.False(t, captured.Config.Features["retrieval"])
}

func TestStreamingClient_CreateSessionDefaultPrompt(t *testing.T) {
	t.Parallel()

	var captured createSessionRequest
	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"success":true,"data":{"session_id":"remote-123"}}`))
	}))

	_, err := client.CreateSession(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, defaultRemoteSystemPrompt, captured.Config.System.SystemPrompt)
}

func TestStreamingClient_CreateSessionMissingID(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	}))

	_, err := client.CreateSession(context.Background(), "user-1", "")
	require.Error(t, err)
	assert.Equal(t, FailureUnavailable, Kind(err))
}

func TestStreamingClient_Query(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/remote-123/query", r.URL.Path)

		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello", req.Query)

		_, _ = w.Write([]byte("data: {\"type\":\"message\",\"data\":{\"content\":\"Hel\"}}\n" +
			"data: {\"type\":\"message\",\"data\":{\"content\":\"lo\"}}\n"))
	}))

	reply, err := client.Query(context.Background(), "remote-123", "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
}

func TestStreamingClient_GenerateRequiresRemoteSession(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.Generate(context.Background(), Request{RawInput: "Hello"})
	require.Error(t, err)
}

func TestStreamingClient_GenerateUsesRawInput(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "raw text", req.Query)
		assert.Equal(t, "42", req.Context["project"])

		_, _ = w.Write([]byte(`data: {"type":"result","data":{"result":"Fallback reply"}}` + "\n"))
	}))

	reply, err := client.Generate(context.Background(), Request{
		RawInput:        "raw text",
		RemoteSessionID: "remote-9",
		Context:         map[string]any{"project": "42"},
		Turns:           []Turn{{Role: RoleUser, Content: "should not be sent"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fallback reply", reply)
}

func TestStreamingClient_QueryFailureClassification(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.Query(context.Background(), "remote-123", "Hello", nil)
	require.Error(t, err)
	assert.Equal(t, FailureUnavailable, Kind(err))
}

func TestStreamingClient_DeleteSession(t *testing.T) {
	t.Parallel()

	var deleted bool
	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/sessions/remote-123", r.URL.Path)
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.DeleteSession(context.Background(), "remote-123"))
	assert.True(t, deleted)
}

func TestStreamingClient_DeleteSessionError(t *testing.T) {
	t.Parallel()

	client := newTestStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	assert.Error(t, client.DeleteSession(context.Background(), "remote-123"))
}
