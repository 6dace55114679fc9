// Package storeerr defines the error kinds surfaced by the settings, credential
// and rule stores.
//
// Every kind is a categorized *errors.Error from go-errors carrying a stable
// text code, so HTTP handlers can map failures to responses without string
// matching. Absence of a key is reported as a found=false result by the
// stores; NotFound exists for callers that need to turn absence into an error.
package storeerr

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to every error produced by this package.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeDurableUnavailable = "DURABLE_STORE_UNAVAILABLE"
	CodeCacheUnavailable   = "CACHE_UNAVAILABLE"
	CodeDecryptionFailure  = "DECRYPTION_FAILURE"
	CodeValidation         = "VALIDATION_ERROR"
)

// NotFound reports that the named entity does not exist.
func NotFound(entity, key string) error {
	return goerrors.New(entity+" not found", goerrors.CategoryNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(map[string]any{"entity": entity, "key": key})
}

// DurableUnavailable wraps a connection or query failure of the durable store.
func DurableUnavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "durable store "+op+" failed").
		WithTextCode(CodeDurableUnavailable).
		WithMetadata(map[string]any{"operation": op})
}

// CacheUnavailable wraps a cache failure. Callers recover from it locally.
func CacheUnavailable(err error, op, key string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "cache "+op+" failed").
		WithTextCode(CodeCacheUnavailable).
		WithMetadata(map[string]any{"operation": op, "key": key})
}

// DecryptionFailure wraps an authentication or format failure while opening a
// ciphertext.
func DecryptionFailure(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "decryption failed").
		WithTextCode(CodeDecryptionFailure)
}

// Validation wraps a malformed payload. fields carries per-field messages when
// the payload was checked with ozzo-validation.
func Validation(err error, message string, fields map[string]string) error {
	if err == nil {
		return nil
	}
	meta := map[string]any{}
	for k, v := range fields {
		meta[k] = v
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(CodeValidation).
		WithMetadata(meta)
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsDurableUnavailable reports whether err carries the DURABLE_STORE_UNAVAILABLE code.
func IsDurableUnavailable(err error) bool { return hasCode(err, CodeDurableUnavailable) }

// IsCacheUnavailable reports whether err carries the CACHE_UNAVAILABLE code.
func IsCacheUnavailable(err error) bool { return hasCode(err, CodeCacheUnavailable) }

// IsDecryptionFailure reports whether err carries the DECRYPTION_FAILURE code.
func IsDecryptionFailure(err error) bool { return hasCode(err, CodeDecryptionFailure) }

// IsValidation reports whether err carries the VALIDATION_ERROR code.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// hasCode walks the chain because a kind may be wrapped by another
// categorized error further up the call stack.
func hasCode(err error, code string) bool {
	for err != nil {
		var e *goerrors.Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.TextCode == code {
			return true
		}
		err = e.Source
	}
	return false
}
