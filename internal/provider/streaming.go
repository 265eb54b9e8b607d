package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sunshineDad/poping/internal/config"
)

const streamingProviderName = "aigents"

// defaultRemoteSystemPrompt seeds remote sessions whose agent has no
// configuration of its own.
const defaultRemoteSystemPrompt = "You are a professional AI assistant providing high-quality conversational service."

// remoteProjectName tags remote sessions for attribution on the backend.
const remoteProjectName = "poping"

// StreamingClient talks to the session-based streaming backend. Besides
// serving as the fallback Provider, it owns the remote session lifecycle:
// sessions are created up front and carry their own history server-side, so
// queries send only the raw user text.
type StreamingClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewStreamingClient builds a streaming client from configuration.
func NewStreamingClient(cfg config.AIGentsConfig, logger *slog.Logger) *StreamingClient {
	return &StreamingClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger,
	}
}

// Name implements Provider.
func (c *StreamingClient) Name() string { return streamingProviderName }

// Generate implements Provider by querying the remote session referenced by
// req.RemoteSessionID with the raw user text.
func (c *StreamingClient) Generate(ctx context.Context, req Request) (string, error) {
	if req.RemoteSessionID == "" {
		return "", c.fail(FailureUnknown, fmt.Errorf("no remote session handle"))
	}
	return c.Query(ctx, req.RemoteSessionID, req.RawInput, req.Context)
}

type createSessionRequest struct {
	Config   sessionConfig   `json:"config"`
	Metadata sessionMetadata `json:"metadata"`
}

type sessionConfig struct {
	Features map[string]bool `json:"features"`
	System   struct {
		SystemPrompt string `json:"system_prompt"`
	} `json:"system"`
}

type sessionMetadata struct {
	UserID      string `json:"user_id"`
	ProjectName string `json:"project_name"`
}

type createSessionResponse struct {
	Success bool `json:"success"`
	Data    struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// CreateSession mints a remote session and returns its opaque handle.
// systemPrompt seeds the remote conversation; when empty a generic default
// is used.
func (c *StreamingClient) CreateSession(ctx context.Context, userID, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = defaultRemoteSystemPrompt
	}

	reqBody := createSessionRequest{
		Config: sessionConfig{
			Features: map[string]bool{
				"memories":  true,
				"events":    true,
				"docs":      true,
				"texts":     true,
				"images":    true,
				"retrieval": false,
			},
		},
		Metadata: sessionMetadata{
			UserID:      userID,
			ProjectName: remoteProjectName,
		},
	}
	reqBody.Config.System.SystemPrompt = systemPrompt

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("encoding session request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.fail(FailureUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.fail(classifyStatus(resp.StatusCode),
			fmt.Errorf("session creation returned status %d", resp.StatusCode))
	}

	var parsed createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", c.fail(FailureUnavailable, fmt.Errorf("decoding session response: %w", err))
	}
	if parsed.Data.SessionID == "" {
		return "", c.fail(FailureUnavailable, fmt.Errorf("session creation returned no session_id"))
	}

	c.logger.Debug("remote session created", "remote_session_id", parsed.Data.SessionID)
	return parsed.Data.SessionID, nil
}

type queryRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

// Query sends text to an existing remote session and decodes the
// event-stream response body into a single reply string.
func (c *StreamingClient) Query(ctx context.Context, remoteSessionID, text string, contextMap map[string]any) (string, error) {
	body, err := json.Marshal(queryRequest{Query: text, Context: contextMap})
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("encoding query: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions/"+remoteSessionID+"/query", bytes.NewReader(body))
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.fail(FailureUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return "", c.fail(classifyStatus(resp.StatusCode),
			fmt.Errorf("query returned status %d", resp.StatusCode))
	}

	return decodeEventStream(resp.Body), nil
}

// DeleteSession removes a remote session. Failures are reported to the
// caller, which is expected to log and move on; remote sessions also expire
// server-side, so cleanup here is best-effort.
func (c *StreamingClient) DeleteSession(ctx context.Context, remoteSessionID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/sessions/"+remoteSessionID, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deleting remote session: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remote session delete returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *StreamingClient) fail(kind FailureKind, err error) error {
	return &Error{Provider: streamingProviderName, Kind: kind, Err: err}
}
