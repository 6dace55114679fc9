package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Backend names accepted by Config.Backend.
const (
	BackendSturdyc  = "sturdyc"
	BackendTTLCache = "ttlcache"
)

// NoExpiry is long enough that entries never expire during a process lifetime.
// Configuration and credential lookups rely on write-through, not expiry.
const NoExpiry = 100 * 365 * 24 * time.Hour

// Config holds the configuration shared by the cache backends.
type Config struct {
	// Backend selects the implementation: "sturdyc" (default) or "ttlcache".
	Backend string

	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Only used by the sturdyc backend. Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for cached entries. Use NoExpiry for
	// write-through caches. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Only used by the sturdyc backend. Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendSturdyc,
		Capacity:           10000,
		NumShards:          256,
		TTL:                NoExpiry,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
//
// Early refreshes and missing record storage are never enabled: the cache
// is populated explicitly by the caller and absence is never cached.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendSturdyc, BackendTTLCache:
	default:
		return &ConfigError{Field: "Backend", Message: "must be one of sturdyc, ttlcache"}
	}

	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	// sturdyc splits Capacity evenly across shards
	if c.Backend != BackendTTLCache && c.NumShards > c.Capacity {
		return &ConfigError{Field: "NumShards", Message: "must not exceed Capacity"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycStore wraps a sturdyc client holding string values.
type SturdycStore struct {
	client *sturdyc.Client[string]
}

// NewSturdycStore creates a new sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[string](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore{client: client}, nil
}

// Get returns the cached value for key. An in-process cache never fails.
func (s *SturdycStore) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := s.client.Get(key)
	return value, ok, nil
}

// Set overwrites the cached value for key.
func (s *SturdycStore) Set(_ context.Context, key, value string) error {
	s.client.Set(key, value)
	return nil
}

// Delete removes a single entry from the cache.
func (s *SturdycStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with prefix.
func (s *SturdycStore) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Len reports the number of cached entries.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}
