// Package keyring stores secrets in the operating system keychain.
package keyring

import (
	"errors"
	"os"

	gokeyring "github.com/zalando/go-keyring"
)

const (
	// ServiceName is the keyring service name for storing secrets.
	// Uses reverse domain notation for proper namespacing.
	ServiceName = "com.tdameritrade.tda"

	// KeyTokenPassphrase is the keyring key for the passphrase that
	// encrypts the token file.
	KeyTokenPassphrase = "token_passphrase"

	// KeyTokenRecord is the keyring key under which the keyring token
	// store keeps the serialized credential record.
	KeyTokenRecord = "token_record"

	// EnvTokenPassphrase is the environment variable name for the token
	// passphrase. When set, it overrides keyring lookups for CI/headless
	// environments.
	EnvTokenPassphrase = "TDA_TOKEN_PASSPHRASE"
)

// envOverrides maps keyring keys to the environment variables that
// override them.
var envOverrides = map[string]string{
	KeyTokenPassphrase: EnvTokenPassphrase,
}

// ErrNotFound is returned when a secret is not found in the keyring.
var ErrNotFound = errors.New("secret not found")

// Store provides an interface for secure secret storage.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SystemStore implements Store using the system keyring.
type SystemStore struct{}

// NewSystemStore creates a new system keyring store.
func NewSystemStore() *SystemStore {
	return &SystemStore{}
}

// Get retrieves a secret from the system keyring.
func (s *SystemStore) Get(service, key string) (string, error) {
	secret, err := gokeyring.Get(service, key)
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

// Set stores a secret in the system keyring.
func (s *SystemStore) Set(service, key, value string) error {
	return gokeyring.Set(service, key, value)
}

// Delete removes a secret from the system keyring.
func (s *SystemStore) Delete(service, key string) error {
	err := gokeyring.Delete(service, key)
	if err != nil && errors.Is(err, gokeyring.ErrNotFound) {
		return nil // Deleting non-existent key is not an error
	}
	return err
}

// EnvStore wraps another Store and checks environment variables first.
// This enables CI/headless environments to provide secrets via env vars.
type EnvStore struct {
	underlying Store
}

// NewEnvStore creates a new EnvStore wrapping the given store.
func NewEnvStore(underlying Store) *EnvStore {
	return &EnvStore{underlying: underlying}
}

// Get retrieves a secret, checking the env var first for keys that have one.
func (e *EnvStore) Get(service, key string) (string, error) {
	if env, ok := envOverrides[key]; ok {
		if envVal := os.Getenv(env); envVal != "" {
			return envVal, nil
		}
	}
	return e.underlying.Get(service, key)
}

// Set stores a secret in the underlying store.
func (e *EnvStore) Set(service, key, value string) error {
	return e.underlying.Set(service, key, value)
}

// Delete removes a secret from the underlying store.
func (e *EnvStore) Delete(service, key string) error {
	return e.underlying.Delete(service, key)
}

// Default returns the system keyring with environment overrides.
func Default() Store {
	return NewEnvStore(NewSystemStore())
}
