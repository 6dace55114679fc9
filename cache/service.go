package cache

import (
	"context"
	"errors"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a namespaced cache key.
const MaxKeyLength = 512

// Sentinel errors for key validation.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Store is the ephemeral string cache consulted around durable reads and writes.
//
// Contract:
//   - Implementations must be safe for concurrent use.
//   - Get returns ("", false, nil) on a miss. An error means the cache itself
//     is unavailable; callers treat it as a miss and fall back to the durable store.
//   - Set overwrites unconditionally. Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is implemented by stores that can drop a whole namespace.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// KeySerializer builds a cache key from a namespace and the logical key parts.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, parts ...string) string
}

// ValidateKey checks that a logical key can be embedded in a cache key.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
