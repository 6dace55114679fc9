package cache

import (
	"time"

	"github.com/goliatone/go-settings-store/internal/cacheinfra"
)

// Supported cache backends.
const (
	BackendSturdyc  = cacheinfra.BackendSturdyc
	BackendTTLCache = cacheinfra.BackendTTLCache
)

// NoExpiry is the TTL used for configuration and credential lookups. Entries
// are kept consistent by write-through, not by expiry.
const NoExpiry = cacheinfra.NoExpiry

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            string
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the cache backend selected by cfg.Backend.
func NewStore(cfg Config) (Store, error) {
	internal := cfg.toInternal()
	if internal.Backend == cacheinfra.BackendTTLCache {
		store, err := cacheinfra.NewTTLCacheStore(internal)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := cacheinfra.NewSturdycStore(internal)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:            c.Backend,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:            cfg.Backend,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
