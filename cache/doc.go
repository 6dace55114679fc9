// Package cache provides the ephemeral cache interfaces and key conventions
// shared by the settings, credential and rule stores.
//
// # Overview
//
// This package exports two interfaces and their default implementations:
//
//   - Store: a string cache with Get/Set/Delete, backed by sturdyc or ttlcache
//   - KeySerializer: builds "{namespace}:{key}" cache keys
//
// The cache is strictly an optimization. It is never the source of truth and
// a Store error is treated by callers as a miss, never as a failed operation.
//
// # Basic Usage
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	keys := cache.NewDefaultKeySerializer()
//	key := keys.SerializeKey("stripe", "api_key") // "stripe:api_key"
//
// Read-through and write-through around a durable store is provided by the
// repositorycache package.
//
// # Expiry
//
// DefaultConfig uses NoExpiry. Configuration and credential entries are kept
// consistent by write-through, so expiry would only add durable round trips.
// Shorter TTLs are supported for other callers (for example document caches).
//
// # Key Conventions
//
// Keys are flat strings, never structured values:
//
//   - configuration: "config:{key}"
//   - credentials:   "{service}:{key}"
//   - rule set:      "rules:cached_rules"
//
// Logical keys are checked with ValidateKey before use: empty keys, keys with
// line breaks and keys longer than MaxKeyLength are rejected.
package cache
