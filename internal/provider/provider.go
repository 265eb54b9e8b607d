// Package provider contains the AI backend clients used to produce assistant
// replies.
//
// Two heterogeneous backends are supported: a stateless chat-completion API
// (CompletionClient) and a session-based streaming API (StreamingClient).
// Both implement the Provider interface so the orchestrator can attempt them
// in order and stop at the first success.
//
// Every failure is returned as a typed *Error carrying a FailureKind, never
// as an unstructured error, so callers can distinguish credential problems
// from transient unavailability.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Turn is a single {role, content} exchange in the conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Request carries everything a provider might need to produce a reply.
// Stateless providers consume SystemPrompt and Turns; session-based providers
// consume RemoteSessionID, RawInput and Context (the remote session carries
// its own history).
type Request struct {
	SystemPrompt    string
	Turns           []Turn
	RawInput        string
	RemoteSessionID string
	Context         map[string]any
}

// Provider produces a reply string from a request.
// Implementations must return *Error on failure.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// FailureKind classifies a provider failure for the fallback policy.
type FailureKind int

const (
	// FailureUnknown is a failure that could not be classified.
	FailureUnknown FailureKind = iota

	// FailureAuth means the provider rejected our credential.
	FailureAuth

	// FailureRateLimited means the provider throttled the request.
	FailureRateLimited

	// FailureUnavailable covers timeouts, 5xx responses and network errors.
	FailureUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth"
	case FailureRateLimited:
		return "rate_limited"
	case FailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind extracts the FailureKind from err, or FailureUnknown if err is not a
// provider error.
func Kind(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureUnknown
}

// classifyStatus maps an HTTP status code to a FailureKind.
func classifyStatus(status int) FailureKind {
	switch {
	case status == 401 || status == 403:
		return FailureAuth
	case status == 429:
		return FailureRateLimited
	case status >= 500:
		return FailureUnavailable
	default:
		return FailureUnavailable
	}
}

// Invoke attempts providers in order and returns the first successful reply
// together with the name of the provider that produced it. Failures are
// logged and drive the fall-through; the last failure is returned when all
// providers fail.
func Invoke(ctx context.Context, providers []Provider, req Request, logger *slog.Logger) (string, string, error) {
	if len(providers) == 0 {
		return "", "", errors.New("no providers configured")
	}

	var lastErr error
	for _, p := range providers {
		reply, err := p.Generate(ctx, req)
		if err == nil {
			return reply, p.Name(), nil
		}

		lastErr = err
		logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"kind", Kind(err).String(),
			"error", err)
	}

	return "", "", lastErr
}
