// Package transcript persists the per-session message log.
//
// Each session owns an append-only transcript. Sequence numbers are assigned
// inside the appending transaction while holding a row lock on the session,
// so for any session they form a contiguous range 1..N with no gaps or
// duplicates. Messages are immutable once written; the only delete is the
// full-session cascade.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrSessionNotFound is returned when appending to a session that does not
// exist.
var ErrSessionNotFound = errors.New("session not found")

// Message is one immutable transcript entry.
type Message struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists messages in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a message store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append inserts a message with the next sequence number for the session.
//
// The session row is locked FOR UPDATE for the duration of the transaction,
// serializing concurrent appends to the same session; appends to different
// sessions do not contend.
func (s *Store) Append(ctx context.Context, sessionID uuid.UUID, role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM chat_sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("locking session: %w", err)
	}

	msg := &Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, content, sequence_number)
		VALUES ($1, $2, $3, (
			SELECT COALESCE(MAX(sequence_number), 0) + 1
			FROM messages WHERE session_id = $1
		))
		RETURNING id, sequence_number, created_at`,
		sessionID, role, content,
	).Scan(&msg.ID, &msg.SequenceNumber, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return msg, nil
}

// Recent returns the most recent limit messages in ascending sequence order.
func (s *Store) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, sequence_number, created_at
		FROM (
			SELECT id, session_id, role, content, sequence_number, created_at
			FROM messages
			WHERE session_id = $1
			ORDER BY sequence_number DESC
			LIMIT $2
		) tail
		ORDER BY sequence_number ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// All returns the full transcript in ascending sequence order.
func (s *Store) All(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, sequence_number, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DeleteAll removes every message in the session and returns the count.
func (s *Store) DeleteAll(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}
