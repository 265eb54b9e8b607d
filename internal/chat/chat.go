// Package chat implements the conversation orchestrator.
//
// SendMessage is the single entry point for a conversational turn: it
// resolves or creates a session, persists the inbound message, asks the
// providers for a reply in fallback order, persists the reply and updates
// session bookkeeping. Persistence of the inbound message is the only hard
// failure after session resolution; everything downstream degrades rather
// than failing the request.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sunshineDad/poping/internal/agent"
	"github.com/sunshineDad/poping/internal/provider"
	"github.com/sunshineDad/poping/internal/session"
	"github.com/sunshineDad/poping/internal/transcript"
)

// unavailableReply is stored and returned when every provider fails.
const unavailableReply = "Sorry, the AI service is temporarily unavailable. Please try again later."

// genericSystemPrompt is used for agents without a configured prompt.
const genericSystemPrompt = "You are a helpful assistant. Answer the user's questions usefully."

// maxTitleLength bounds the session title derived from the first message.
const maxTitleLength = 50

// ErrEmptyMessage is returned when the inbound message is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// Consumer-side views of the stores, narrowed to what the orchestrator uses.

type transcriptStore interface {
	Append(ctx context.Context, sessionID uuid.UUID, role, content string) (*transcript.Message, error)
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]transcript.Message, error)
	All(ctx context.Context, sessionID uuid.UUID) ([]transcript.Message, error)
}

type sessionStore interface {
	Create(ctx context.Context, userID, agentID uuid.UUID, remoteSessionID, title string) (*session.Session, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*session.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]session.Session, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

type agentStore interface {
	Get(ctx context.Context, id, userID uuid.UUID) (*agent.Agent, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type remoteSessions interface {
	CreateSession(ctx context.Context, userID, systemPrompt string) (string, error)
	DeleteSession(ctx context.Context, remoteSessionID string) error
}

// Service orchestrates conversations across the stores and providers.
type Service struct {
	transcripts   transcriptStore
	sessions      sessionStore
	agents        agentStore
	remote        remoteSessions
	providers     []provider.Provider
	historyWindow int
	logger        *slog.Logger
}

// NewService wires the orchestrator. providers are attempted in order; the
// first is expected to be the stateless completion client and the rest
// session-based fallbacks.
func NewService(
	transcripts transcriptStore,
	sessions sessionStore,
	agents agentStore,
	remote remoteSessions,
	providers []provider.Provider,
	historyWindow int,
	logger *slog.Logger,
) *Service {
	return &Service{
		transcripts:   transcripts,
		sessions:      sessions,
		agents:        agents,
		remote:        remote,
		providers:     providers,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// SendRequest is one inbound conversational turn.
// A nil SessionID always creates a fresh session, even when an active one
// exists for the same agent; callers wanting continuity must pass the id.
type SendRequest struct {
	AgentID   uuid.UUID
	SessionID *uuid.UUID
	Message   string
	Context   map[string]any
}

// SendResult reports the outcome of a turn. AssistantMessageID is zero when
// the reply could not be persisted; the reply itself is still returned.
type SendResult struct {
	SessionID          uuid.UUID `json:"session_id"`
	Reply              string    `json:"reply"`
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
}

// SendMessage runs one conversational turn for userID.
func (s *Service) SendMessage(ctx context.Context, userID uuid.UUID, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	ag, err := s.agents.Get(ctx, req.AgentID, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving agent: %w", err)
	}
	if ag.Status != agent.StatusActive {
		return nil, agent.ErrInactive
	}

	sess, err := s.resolveSession(ctx, userID, ag, req)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.transcripts.Append(ctx, sess.ID, transcript.RoleUser, req.Message)
	if err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	turns, err := s.buildContext(ctx, sess.ID, userMsg.ID, req.Message)
	if err != nil {
		return nil, err
	}

	systemPrompt := ag.SessionConfig
	if systemPrompt == "" {
		systemPrompt = genericSystemPrompt
	}

	reply, providerName, err := provider.Invoke(ctx, s.providers, provider.Request{
		SystemPrompt:    systemPrompt,
		Turns:           turns,
		RawInput:        req.Message,
		RemoteSessionID: sess.RemoteSessionID,
		Context:         req.Context,
	}, s.logger)
	if err != nil {
		s.logger.Error("all providers failed",
			"session_id", sess.ID,
			"error", err)
		reply = unavailableReply
	} else {
		s.logger.Debug("reply produced",
			"session_id", sess.ID,
			"provider", providerName)
	}

	result := &SendResult{
		SessionID:     sess.ID,
		Reply:         reply,
		UserMessageID: userMsg.ID,
	}

	// The user already has the reply in hand; losing the stored copy is
	// logged, not surfaced.
	assistantMsg, err := s.transcripts.Append(ctx, sess.ID, transcript.RoleAssistant, reply)
	if err != nil {
		s.logger.Warn("persisting assistant message failed",
			"session_id", sess.ID,
			"error", err)
	} else {
		result.AssistantMessageID = assistantMsg.ID
	}

	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		s.logger.Warn("touching session failed",
			"session_id", sess.ID,
			"error", err)
	}
	if err := s.agents.IncrementUsage(ctx, ag.ID); err != nil {
		s.logger.Warn("incrementing agent usage failed",
			"agent_id", ag.ID,
			"error", err)
	}

	return result, nil
}

// resolveSession loads an existing session or mints a new one. Creation
// orders the remote session first so a local row never exists without a
// remote handle.
func (s *Service) resolveSession(ctx context.Context, userID uuid.UUID, ag *agent.Agent, req SendRequest) (*session.Session, error) {
	if req.SessionID != nil {
		sess, err := s.sessions.Get(ctx, *req.SessionID, userID)
		if err != nil {
			return nil, fmt.Errorf("resolving session: %w", err)
		}
		return sess, nil
	}

	remoteID, err := s.remote.CreateSession(ctx, userID.String(), ag.SessionConfig)
	if err != nil {
		return nil, fmt.Errorf("creating remote session: %w", err)
	}

	sess, err := s.sessions.Create(ctx, userID, ag.ID, remoteID, deriveTitle(req.Message))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("session created",
		"session_id", sess.ID,
		"agent_id", ag.ID,
		"remote_session_id", remoteID)
	return sess, nil
}

// buildContext assembles the completion context: the most recent transcript
// window excluding the message just inserted, followed by the current turn.
func (s *Service) buildContext(ctx context.Context, sessionID, currentMsgID uuid.UUID, message string) ([]provider.Turn, error) {
	history, err := s.transcripts.Recent(ctx, sessionID, s.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	turns := make([]provider.Turn, 0, len(history)+1)
	for _, m := range history {
		if m.ID == currentMsgID {
			continue
		}
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, provider.Turn{Role: provider.RoleUser, Content: message})
	return turns, nil
}

// Sessions lists the caller's sessions, most recently active first.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]session.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// Session returns one session after verifying ownership.
func (s *Service) Session(ctx context.Context, id, userID uuid.UUID) (*session.Session, error) {
	return s.sessions.Get(ctx, id, userID)
}

// Messages returns the full transcript of a session the caller owns.
func (s *Service) Messages(ctx context.Context, id, userID uuid.UUID) ([]transcript.Message, error) {
	if _, err := s.sessions.Get(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.transcripts.All(ctx, id)
}

// DeleteSession removes a session, its transcript and its remote
// counterpart. The remote delete is best-effort; the local deletes are
// transactional and authoritative.
func (s *Service) DeleteSession(ctx context.Context, id, userID uuid.UUID) error {
	sess, err := s.sessions.Get(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.remote.DeleteSession(ctx, sess.RemoteSessionID); err != nil {
		s.logger.Warn("deleting remote session failed",
			"session_id", id,
			"remote_session_id", sess.RemoteSessionID,
			"error", err)
	}

	deleted, err := s.sessions.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	s.logger.Info("session deleted",
		"session_id", id,
		"messages_deleted", deleted)
	return nil
}

// deriveTitle builds a session title from the first message, truncated on a
// rune boundary.
func deriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleLength]) + "…"
}
