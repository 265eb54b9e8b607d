// Package catalog manages the model-provider catalog and each user's
// provider credentials. The catalog itself is seeded by migration; users
// attach one credential set per provider, which the API returns with the key
// masked.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog entry and credential statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	// ErrUnknownProvider is returned when no active catalog entry matches.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrConfigNotFound is returned when the user has no active credential
	// for the provider.
	ErrConfigNotFound = errors.New("provider config not found")
)

// Provider is one catalog entry.
type Provider struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Config is one user's credential set for a provider.
// SECURITY: the API key is masked in MarshalJSON; the raw value never leaves
// the process.
type Config struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	APIURL       string    `json:"api_url"`
	APIKey       string    `json:"api_key"`
	ExtConfig    string    `json:"ext_config,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler with the API key masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.APIKey = maskKey(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal provider config: %w", err)
	}
	return data, nil
}

// maskKey keeps the first and last four characters of a key for recognition;
// everything else is starred out. Short keys are fully masked.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	stars := min(len(key)-8, 20)
	return key[:4] + strings.Repeat("*", stars) + key[len(key)-4:]
}

// Store persists the provider catalog and user credentials in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a catalog store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Providers lists the active catalog entries.
func (s *Store) Providers(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), status, created_at
		FROM providers
		WHERE status = $1
		ORDER BY name`,
		StatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying providers: %w", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating providers: %w", err)
	}
	return providers, nil
}

const configColumns = `
	c.id, c.user_id, c.provider_id, p.name, c.api_url, c.api_key,
	COALESCE(c.ext_config, ''), c.status, c.created_at, c.updated_at`

// UserConfigs lists the user's active credentials with provider names.
func (s *Store) UserConfigs(ctx context.Context, userID uuid.UUID) ([]Config, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+configColumns+`
		FROM provider_configs c
		JOIN providers p ON p.id = c.provider_id
		WHERE c.user_id = $1 AND c.status = $2
		ORDER BY p.name`,
		userID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying provider configs: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var c Config
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProviderID, &c.ProviderName,
			&c.APIURL, &c.APIKey, &c.ExtConfig, &c.Status,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning provider config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider configs: %w", err)
	}
	return configs, nil
}

// Config loads the user's active credential for one provider.
func (s *Store) Config(ctx context.Context, userID, providerID uuid.UUID) (*Config, error) {
	var c Config
	err := s.pool.QueryRow(ctx, `
		SELECT `+configColumns+`
		FROM provider_configs c
		JOIN providers p ON p.id = c.provider_id
		WHERE c.user_id = $1 AND c.provider_id = $2 AND c.status = $3`,
		userID, providerID, StatusActive,
	).Scan(&c.ID, &c.UserID, &c.ProviderID, &c.ProviderName,
		&c.APIURL, &c.APIKey, &c.ExtConfig, &c.Status,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("querying provider config: %w", err)
	}
	return &c, nil
}

// SaveConfig creates or replaces the user's credential for a provider. A
// credential deactivated by DeleteConfig is revived in place.
func (s *Store) SaveConfig(ctx context.Context, userID, providerID uuid.UUID, apiURL, apiKey, extConfig string) (*Config, error) {
	var providerName string
	err := s.pool.QueryRow(ctx,
		`SELECT name FROM providers WHERE id = $1 AND status = $2`,
		providerID, StatusActive,
	).Scan(&providerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownProvider
		}
		return nil, fmt.Errorf("querying provider: %w", err)
	}

	c := &Config{
		UserID:       userID,
		ProviderID:   providerID,
		ProviderName: providerName,
		APIURL:       apiURL,
		APIKey:       apiKey,
		ExtConfig:    extConfig,
		Status:       StatusActive,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO provider_configs (user_id, provider_id, api_url, api_key, ext_config)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (user_id, provider_id) DO UPDATE SET
			api_url = EXCLUDED.api_url,
			api_key = EXCLUDED.api_key,
			ext_config = EXCLUDED.ext_config,
			status = 'active',
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		userID, providerID, apiURL, apiKey, extConfig,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving provider config: %w", err)
	}
	return c, nil
}

// DeleteConfig deactivates the user's credential for a provider. The row is
// kept so a later SaveConfig revives it with fresh values.
func (s *Store) DeleteConfig(ctx context.Context, userID, providerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE provider_configs
		SET status = $1, updated_at = now()
		WHERE user_id = $2 AND provider_id = $3 AND status = $4`,
		StatusInactive, userID, providerID, StatusActive)
	if err != nil {
		return fmt.Errorf("deactivating provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}
