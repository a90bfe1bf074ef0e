package keyring

import "sync"

type entry struct {
	service string
	key     string
}

// MockStore is an in-memory Store for tests. It counts writes per key so
// tests can assert how often a secret was replaced.
type MockStore struct {
	mu     sync.Mutex
	data   map[entry]string
	writes map[entry]int
	getErr error
	setErr error
	delErr error
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		data:   make(map[entry]string),
		writes: make(map[entry]int),
	}
}

// Get returns the secret or ErrNotFound.
func (m *MockStore) Get(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[entry{service, key}]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores the secret.
func (m *MockStore) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	e := entry{service, key}
	m.data[e] = value
	m.writes[e]++
	return nil
}

// Delete removes the secret. A missing secret is not an error.
func (m *MockStore) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, entry{service, key})
	return nil
}

// Writes returns how many successful Set calls hit service/key.
func (m *MockStore) Writes(service, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[entry{service, key}]
}

// WithGetError makes every Get fail with err.
func (m *MockStore) WithGetError(err error) *MockStore {
	m.getErr = err
	return m
}

// WithSetError makes every Set fail with err.
func (m *MockStore) WithSetError(err error) *MockStore {
	m.setErr = err
	return m
}

// WithDeleteError makes every Delete fail with err.
func (m *MockStore) WithDeleteError(err error) *MockStore {
	m.delErr = err
	return m
}

// WithData seeds a secret without counting it as a write.
func (m *MockStore) WithData(service, key, value string) *MockStore {
	m.data[entry{service, key}] = value
	return m
}
