package cacheinfra

import (
	"context"
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

// TTLCacheStore wraps a jellydator/ttlcache instance holding string values.
type TTLCacheStore struct {
	cache   *ttlcache.Cache[string, string]
	started bool
}

// NewTTLCacheStore creates a ttlcache backed store. A TTL of NoExpiry disables
// expiry entirely; any other TTL starts the background expiration loop.
func NewTTLCacheStore(cfg Config) (*TTLCacheStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl >= NoExpiry {
		ttl = ttlcache.NoTTL
	}

	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithCapacity[string, string](uint64(cfg.Capacity)),
	)

	store := &TTLCacheStore{cache: c}
	if ttl != ttlcache.NoTTL {
		store.started = true
		go c.Start()
	}

	return store, nil
}

// Get returns the cached value for key.
func (s *TTLCacheStore) Get(_ context.Context, key string) (string, bool, error) {
	item := s.cache.Get(key)
	if item == nil {
		return "", false, nil
	}
	return item.Value(), true, nil
}

// Set overwrites the cached value for key using the configured TTL.
func (s *TTLCacheStore) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

// Delete removes a single entry from the cache.
func (s *TTLCacheStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with prefix.
func (s *TTLCacheStore) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
	return nil
}

// Len reports the number of cached entries.
func (s *TTLCacheStore) Len() int {
	return s.cache.Len()
}

// Close stops the expiration loop if it was started.
func (s *TTLCacheStore) Close() error {
	if s.started {
		s.cache.Stop()
	}
	return nil
}
