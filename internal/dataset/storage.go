package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyFile is returned when an uploaded file has no content.
var ErrEmptyFile = errors.New("uploaded file is empty")

// StoredFile describes one file written by Storage.Save. Path is relative to
// the storage root and is what the file store persists.
type StoredFile struct {
	ID           uuid.UUID
	OriginalName string
	StoredName   string
	ContentType  string
	Size         int64
	Path         string
}

// Storage writes uploaded dataset files to the local filesystem under a
// single root directory, partitioned by upload date and dataset.
type Storage struct {
	root string
}

// NewStorage creates the root directory if needed and returns a storage
// rooted there.
func NewStorage(dir string) (*Storage, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Storage{root: root}, nil
}

// Save copies r into datasets/<date>/<datasetID>/<fileID><ext> and returns
// the stored file's metadata. The original filename only contributes its
// extension; the stored name is a fresh UUID.
func (s *Storage) Save(datasetID uuid.UUID, originalName, contentType string, r io.Reader) (*StoredFile, error) {
	fileID := uuid.New()
	storedName := fileID.String()
	if ext := filepath.Ext(originalName); ext != "" {
		storedName += ext
	}

	relDir := filepath.Join("datasets", time.Now().UTC().Format("2006-01-02"), datasetID.String())
	if err := os.MkdirAll(filepath.Join(s.root, relDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset dir: %w", err)
	}

	relPath := filepath.Join(relDir, storedName)
	f, err := os.Create(filepath.Join(s.root, relPath))
	if err != nil {
		return nil, fmt.Errorf("creating dataset file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.root, relPath))
		return nil, fmt.Errorf("writing dataset file: %w", err)
	}
	if size == 0 {
		_ = os.Remove(filepath.Join(s.root, relPath))
		return nil, ErrEmptyFile
	}

	return &StoredFile{
		ID:           fileID,
		OriginalName: filepath.Base(originalName),
		StoredName:   storedName,
		ContentType:  contentType,
		Size:         size,
		Path:         filepath.ToSlash(relPath),
	}, nil
}

// Remove deletes a stored file by its relative path. Paths escaping the
// storage root are rejected.
func (s *Storage) Remove(relPath string) error {
	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return fmt.Errorf("path %q escapes storage root", relPath)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing dataset file: %w", err)
	}
	return nil
}
