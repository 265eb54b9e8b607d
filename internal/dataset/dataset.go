// Package dataset manages dataset records and their asynchronous parsing
// pipeline. Uploads return immediately with a PENDING record; a background
// worker advances the record through PROCESSING to READY or FAILED and
// broadcasts progress to WebSocket subscribers.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dataset statuses.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusReady      = "READY"
	StatusFailed     = "FAILED"
)

var (
	// ErrNotFound is returned when no dataset matches the identifier.
	ErrNotFound = errors.New("dataset not found")

	// ErrForbidden is returned when a dataset belongs to another user.
	ErrForbidden = errors.New("dataset belongs to another user")
)

// Dataset is a stored dataset record.
type Dataset struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	ParseProgress int       `json:"parse_progress"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// File is one uploaded file attached to a dataset.
type File struct {
	ID           uuid.UUID `json:"id"`
	DatasetID    uuid.UUID `json:"dataset_id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	ContentType  string    `json:"content_type"`
	FileSize     int64     `json:"file_size"`
	StoragePath  string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists datasets in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a dataset store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const datasetColumns = `id, user_id, name, description, status, parse_progress, COALESCE(error_message, ''), created_at, updated_at`

// Create inserts a new PENDING dataset.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, name, description string) (*Dataset, error) {
	d := &Dataset{
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO datasets (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, status, parse_progress, created_at, updated_at`,
		userID, name, description,
	).Scan(&d.ID, &d.Status, &d.ParseProgress, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting dataset: %w", err)
	}
	return d, nil
}

// Get loads a dataset and verifies it belongs to userID.
func (s *Store) Get(ctx context.Context, id, userID uuid.UUID) (*Dataset, error) {
	var d Dataset
	err := s.pool.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.UserID, &d.Name, &d.Description, &d.Status,
		&d.ParseProgress, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying dataset: %w", err)
	}
	if d.UserID != userID {
		return nil, ErrForbidden
	}
	return &d, nil
}

// ListByUser returns the user's datasets, newest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Dataset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying datasets: %w", err)
	}
	defer rows.Close()

	var datasets []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Description,
			&d.Status, &d.ParseProgress, &d.ErrorMessage,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datasets: %w", err)
	}
	return datasets, nil
}

// SetProgress records a status and progress step.
func (s *Store) SetProgress(ctx context.Context, id uuid.UUID, status string, progress int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE datasets
		SET status = $1, parse_progress = $2, updated_at = now()
		WHERE id = $3`,
		status, progress, id)
	if err != nil {
		return fmt.Errorf("updating dataset progress: %w", err)
	}
	return nil
}

// SetFailed marks the dataset FAILED with an error message.
func (s *Store) SetFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE datasets
		SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3`,
		StatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("marking dataset failed: %w", err)
	}
	return nil
}

// AddFile records an uploaded file against a dataset.
func (s *Store) AddFile(ctx context.Context, datasetID uuid.UUID, sf *StoredFile) (*File, error) {
	f := &File{
		ID:           sf.ID,
		DatasetID:    datasetID,
		OriginalName: sf.OriginalName,
		StoredName:   sf.StoredName,
		ContentType:  sf.ContentType,
		FileSize:     sf.Size,
		StoragePath:  sf.Path,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dataset_files (id, dataset_id, original_name, stored_name, content_type, file_size, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		f.ID, f.DatasetID, f.OriginalName, f.StoredName, f.ContentType, f.FileSize, f.StoragePath,
	).Scan(&f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting dataset file: %w", err)
	}
	return f, nil
}

// Files lists a dataset's uploaded files in upload order.
func (s *Store) Files(ctx context.Context, datasetID uuid.UUID) ([]File, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, original_name, stored_name, content_type, file_size, storage_path, created_at
		FROM dataset_files
		WHERE dataset_id = $1
		ORDER BY created_at`,
		datasetID)
	if err != nil {
		return nil, fmt.Errorf("querying dataset files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.DatasetID, &f.OriginalName, &f.StoredName,
			&f.ContentType, &f.FileSize, &f.StoragePath, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dataset file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dataset files: %w", err)
	}
	return files, nil
}

// Delete removes a dataset after verifying ownership.
func (s *Store) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM datasets WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("deleting dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
