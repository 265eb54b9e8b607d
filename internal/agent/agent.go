// Package agent manages agent configurations.
//
// An agent is a reusable conversation persona: a name, an optional system
// prompt (session_config) and a visibility flag. Agents are referenced by
// many sessions but own none of them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Agent statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	// ErrNotFound is returned when no agent matches the identifier.
	ErrNotFound = errors.New("agent not found")

	// ErrForbidden is returned when an agent exists but is neither public
	// nor owned by the caller.
	ErrForbidden = errors.New("agent not accessible")

	// ErrInactive is returned when chatting against a deactivated agent.
	ErrInactive = errors.New("agent is inactive")
)

// Agent is a stored agent configuration.
type Agent struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	SessionConfig string    `json:"session_config"`
	Status        string    `json:"status"`
	IsPublic      bool      `json:"is_public"`
	UsageCount    int       `json:"usage_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists agents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an agent store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const agentColumns = `id, user_id, name, description, session_config, status, is_public, usage_count, created_at, updated_at`

// Create inserts a new active agent owned by userID.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, name, description, sessionConfig string, isPublic bool) (*Agent, error) {
	a := &Agent{
		UserID:        userID,
		Name:          name,
		Description:   description,
		SessionConfig: sessionConfig,
		IsPublic:      isPublic,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agent_configs (user_id, name, description, session_config, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, usage_count, created_at, updated_at`,
		userID, name, description, sessionConfig, isPublic,
	).Scan(&a.ID, &a.Status, &a.UsageCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	return a, nil
}

// Get loads an agent visible to userID: either owned by them or public.
func (s *Store) Get(ctx context.Context, id, userID uuid.UUID) (*Agent, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID && !a.IsPublic {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Store) get(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var a Agent
	err := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agent_configs WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.SessionConfig,
		&a.Status, &a.IsPublic, &a.UsageCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return &a, nil
}

// ListVisible returns the caller's own agents plus public ones, newest first.
func (s *Store) ListVisible(ctx context.Context, userID uuid.UUID) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agent_configs
		 WHERE user_id = $1 OR is_public
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Description,
			&a.SessionConfig, &a.Status, &a.IsPublic, &a.UsageCount,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// Update modifies an agent's mutable fields after verifying ownership.
func (s *Store) Update(ctx context.Context, id, userID uuid.UUID, name, description, sessionConfig, status string, isPublic bool) (*Agent, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_configs
		SET name = $1, description = $2, session_config = $3, status = $4,
		    is_public = $5, updated_at = now()
		WHERE id = $6 AND user_id = $7`,
		name, description, sessionConfig, status, isPublic, id, userID)
	if err != nil {
		return nil, fmt.Errorf("updating agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.get(ctx, id)
}

// Delete removes an agent after verifying ownership. Sessions referencing it
// cascade away with their transcripts.
func (s *Store) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agent_configs WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps the usage counter. Best-effort: callers log failures
// and carry on.
func (s *Store) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_configs SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("incrementing agent usage: %w", err)
	}
	return nil
}
