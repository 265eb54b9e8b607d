// Package session manages durable conversation sessions.
//
// A session binds one user to one agent and carries the handle of its remote
// counterpart session on the streaming backend. The remote handle is set at
// creation and never changes afterwards.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session statuses.
const (
	StatusActive   = "active"
	StatusEnded    = "ended"
	StatusArchived = "archived"
)

var (
	// ErrNotFound is returned when no session matches the identifier.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden is returned when a session exists but belongs to a
	// different user.
	ErrForbidden = errors.New("session belongs to another user")
)

// Session is a durable conversation between a user and an agent.
type Session struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	AgentID         uuid.UUID `json:"agent_id"`
	RemoteSessionID string    `json:"remote_session_id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	LastActivity    time.Time `json:"last_activity"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists sessions in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a session store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sessionColumns = `id, user_id, agent_id, remote_session_id, title, status, last_activity, created_at`

// Create inserts a new active session holding the given remote handle.
func (s *Store) Create(ctx context.Context, userID, agentID uuid.UUID, remoteSessionID, title string) (*Session, error) {
	sess := &Session{
		UserID:          userID,
		AgentID:         agentID,
		RemoteSessionID: remoteSessionID,
		Title:           title,
		Status:          StatusActive,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (user_id, agent_id, remote_session_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, last_activity, created_at`,
		userID, agentID, remoteSessionID, title,
	).Scan(&sess.ID, &sess.Status, &sess.LastActivity, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get loads a session and verifies it belongs to userID. A session owned by
// someone else yields ErrForbidden, never the session itself.
func (s *Store) Get(ctx context.Context, id, userID uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.UserID, &sess.AgentID, &sess.RemoteSessionID,
		&sess.Title, &sess.Status, &sess.LastActivity, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if sess.UserID != userID {
		return nil, ErrForbidden
	}
	return &sess, nil
}

// ListByUser returns the user's sessions, most recently active first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions
		 WHERE user_id = $1
		 ORDER BY last_activity DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.AgentID,
			&sess.RemoteSessionID, &sess.Title, &sess.Status,
			&sess.LastActivity, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Touch bumps last_activity to now. Touching an unknown session is not an
// error; the operation is idempotent and changes nothing but the timestamp.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET last_activity = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// UpdateStatus transitions the session status after verifying ownership.
// Unknown sessions yield ErrNotFound, sessions owned by someone else
// ErrForbidden.
func (s *Store) UpdateStatus(ctx context.Context, id, userID uuid.UUID, status string) error {
	return s.updateColumn(ctx, id, userID,
		`UPDATE chat_sessions SET status = $1 WHERE id = $2`, status)
}

// UpdateTitle renames the session after verifying ownership. Same error
// taxonomy as UpdateStatus.
func (s *Store) UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) error {
	return s.updateColumn(ctx, id, userID,
		`UPDATE chat_sessions SET title = $1 WHERE id = $2`, title)
}

// updateColumn locks the session row, checks the owner, then applies the
// single-column update inside one transaction.
func (s *Store) updateColumn(ctx context.Context, id, userID uuid.UUID, query string, value any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ownerID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM chat_sessions WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("locking session: %w", err)
	}
	if ownerID != userID {
		return ErrForbidden
	}

	if _, err := tx.Exec(ctx, query, value, id); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

// Delete removes the session and its transcript in one transaction after
// verifying ownership. The messages table cascades on the session delete,
// but the transcript is removed explicitly so the returned count is exact.
func (s *Store) Delete(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ownerID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM chat_sessions WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("locking session: %w", err)
	}
	if ownerID != userID {
		return 0, ErrForbidden
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM messages WHERE session_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting transcript: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_sessions WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("deleting session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
