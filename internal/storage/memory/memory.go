// Package memory provides an in-process storage.KV.
package memory

import (
	"context"
	"sync"

	"github.com/ecobazaar/storefront/internal/storage"
)

// KV keeps values in a map. It is safe for concurrent use, and it also backs
// tests that need to inject failures via SetFailure.
type KV struct {
	mu     sync.RWMutex
	values map[string][]byte
	getErr error
	setErr error
	writes int
}

// New returns an empty KV.
func New() *KV {
	return &KV{values: make(map[string][]byte)}
}

func (m *KV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, storage.KeyNotFound(key)
	}
	return append([]byte(nil), v...), nil
}

func (m *KV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *KV) Ping(context.Context) error {
	return nil
}

// SetFailure makes subsequent reads and writes fail with the given errors.
// Pass nil to clear.
func (m *KV) SetFailure(getErr, setErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr, m.setErr = getErr, setErr
}

// Writes returns the number of successful Set calls.
func (m *KV) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Keys returns the number of stored keys.
func (m *KV) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
