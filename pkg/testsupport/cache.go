package testsupport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-settings-store/cache"
)

// ErrCacheDown is returned by FailingStore.
var ErrCacheDown = errors.New("cache unavailable")

// FailingStore is a cache.Store whose every operation fails.
type FailingStore struct{}

var _ cache.Store = FailingStore{}

func (FailingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, ErrCacheDown
}

func (FailingStore) Set(context.Context, string, string) error { return ErrCacheDown }

func (FailingStore) Delete(context.Context, string) error { return ErrCacheDown }

// MemoryStore is a map backed cache.Store that can inspect its contents.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

var (
	_ cache.Store         = (*MemoryStore)(nil)
	_ cache.PrefixDeleter = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

// Peek returns the raw cached value for key.
func (m *MemoryStore) Peek(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Put seeds the cache directly.
func (m *MemoryStore) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}
