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

const completionProviderName = "openai"

// CompletionClient talks to an OpenAI-compatible chat-completions endpoint.
// It is stateless: the full conversation context travels in each request.
type CompletionClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// NewCompletionClient builds a completion client from configuration.
// The HTTP client timeout doubles as the per-request deadline.
func NewCompletionClient(cfg config.OpenAIConfig, logger *slog.Logger) *CompletionClient {
	return &CompletionClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Name implements Provider.
func (c *CompletionClient) Name() string { return completionProviderName }

type completionRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []Turn  `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate implements Provider. The system prompt, when set, is prepended as
// a system message ahead of the conversation turns.
func (c *CompletionClient) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]Turn, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, Turn{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.Turns...)

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("encoding request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", c.fail(FailureUnknown, fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures land here.
		return "", c.fail(FailureUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("completion request rejected",
			"status", resp.StatusCode,
			"body", string(snippet))
		return "", c.fail(classifyStatus(resp.StatusCode),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", c.fail(FailureUnavailable, fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", c.fail(FailureUnavailable, fmt.Errorf("response contained no choices"))
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *CompletionClient) fail(kind FailureKind, err error) error {
	return &Error{Provider: completionProviderName, Kind: kind, Err: err}
}
