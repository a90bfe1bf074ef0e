package tokenstore

import (
	"context"
	"errors"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/keyring"
)

// KeyringStore keeps the record in the system keychain.
type KeyringStore struct {
	secrets keyring.Store
}

// NewKeyringStore returns a store backed by secrets.
func NewKeyringStore(secrets keyring.Store) *KeyringStore {
	return &KeyringStore{secrets: secrets}
}

// Load reads the record. A missing entry is auth.ErrNotFound.
func (s *KeyringStore) Load(_ context.Context) (auth.TokenRecord, error) {
	data, err := s.secrets.Get(keyring.ServiceName, keyring.KeyTokenRecord)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return auth.TokenRecord{}, auth.ErrNotFound
		}
		return auth.TokenRecord{}, err
	}
	return decode([]byte(data))
}

// Save replaces the keychain entry.
func (s *KeyringStore) Save(_ context.Context, rec auth.TokenRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return s.secrets.Set(keyring.ServiceName, keyring.KeyTokenRecord, string(data))
}

// Close implements Store.
func (s *KeyringStore) Close() error { return nil }
