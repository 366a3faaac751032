// Package mocks holds hand-written test doubles shared across packages.
package mocks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCacheDown is returned by a failing Store.
var ErrCacheDown = errors.New("mock cache unavailable")

// Store is an in-memory implementation of cache.Store.
// Set Fail to make every operation return ErrCacheDown, or FailWrites to
// fail only Set and SetIfAbsent.
type Store struct {
	mu         sync.RWMutex
	data       map[string][]byte
	ttls       map[string]time.Duration
	Fail       bool
	FailWrites bool
}

// NewStore creates a new mock store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

// Set stores a value. The TTL is recorded but never enforced.
func (m *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail || m.FailWrites {
		return ErrCacheDown
	}
	m.data[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

// SetIfAbsent stores a value unless the key exists.
func (m *Store) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail || m.FailWrites {
		return false, ErrCacheDown
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return true, nil
}

// Get retrieves a value.
func (m *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Fail {
		return nil, false, ErrCacheDown
	}
	value, ok := m.data[key]
	return value, ok, nil
}

// Scan lists keys with the prefix in sorted order.
func (m *Store) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Fail {
		return nil, ErrCacheDown
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes keys.
func (m *Store) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return ErrCacheDown
	}
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttls, k)
	}
	return nil
}

// DeleteMatching removes keys with the prefix.
func (m *Store) DeleteMatching(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return 0, ErrCacheDown
	}
	removed := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			delete(m.ttls, k)
			removed++
		}
	}
	return removed, nil
}

// TTL returns the TTL a key was last written with.
func (m *Store) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ttls[key]
}

// Has reports whether key is present.
func (m *Store) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}
