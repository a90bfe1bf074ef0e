package tokenstore

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/keyring"
)

// Backend names accepted by Open.
const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
	BackendSQLite    = "sqlite"
	BackendKeyring   = "keyring"
)

// Store is an auth.Store that may hold resources.
type Store interface {
	auth.Store
	Close() error
}

// DefaultPath returns the backing path for backend inside dir.
func DefaultPath(backend, dir string) string {
	switch backend {
	case BackendEncrypted:
		return filepath.Join(dir, "tokens.enc")
	case BackendSQLite:
		return filepath.Join(dir, "tokens.db")
	default:
		return filepath.Join(dir, "tokens.json")
	}
}

// Open returns the store for backend. An empty path uses DefaultPath in
// dir. The encrypted backend reads its passphrase from secrets.
func Open(backend, path, dir string, secrets keyring.Store) (Store, error) {
	if backend == "" {
		backend = BackendFile
	}
	if path == "" && backend != BackendKeyring {
		path = DefaultPath(backend, dir)
	}

	switch backend {
	case BackendFile:
		return NewFileStore(path), nil

	case BackendEncrypted:
		passphrase, err := secrets.Get(keyring.ServiceName, keyring.KeyTokenPassphrase)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, fmt.Errorf("no token passphrase: set %s or run 'tda configure'", keyring.EnvTokenPassphrase)
			}
			return nil, fmt.Errorf("failed to read token passphrase: %w", err)
		}
		return NewEncryptedFileStore(path, []byte(passphrase))

	case BackendSQLite:
		return OpenSQLite(path)

	case BackendKeyring:
		return NewKeyringStore(secrets), nil

	default:
		return nil, fmt.Errorf("unknown token store backend %q", backend)
	}
}
