package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonandersen/tda/internal/auth"
)

// FileStore keeps the record as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load reads the record. A missing file is auth.ErrNotFound.
func (s *FileStore) Load(_ context.Context) (auth.TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return auth.TokenRecord{}, auth.ErrNotFound
		}
		return auth.TokenRecord{}, err
	}
	return decode(data)
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, rec auth.TokenRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// writeFileAtomic writes data to a temp file next to path and renames it
// over path. The directory is created 0700 and the file is 0600.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
