// Package credstore keeps third-party service credentials encrypted at rest.
//
// Each (service, key) pair is an append-only version log of ciphertexts in
// the durable store. The cache entry "{service}:{key}" is written on every
// Store. By default it holds the plaintext and a cache miss on Get decrypts
// the durable row without repopulating the cache; both behaviours can be
// changed through Options.
package credstore

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/cryptobox"
	"github.com/goliatone/go-settings-store/internal/durable"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/repositorycache"
)

// DefaultKeyFile is the key file used when Options.KeyFile is empty.
const DefaultKeyFile = "key.key"

var errServiceSeparator = errors.New("must not contain " + cache.KeySeparator)

// Options controls key loading and cache behaviour.
type Options struct {
	// KeyFile is read, or created, on first use.
	KeyFile string
	// CachePlaintext stores decrypted values in the cache. When false the
	// cache holds the ciphertext and every hit is decrypted.
	CachePlaintext bool
	// PopulateOnMiss writes the value back to the cache after a durable read.
	PopulateOnMiss bool
}

// DefaultOptions caches plaintext and never populates on a miss.
func DefaultOptions() Options {
	return Options{
		KeyFile:        DefaultKeyFile,
		CachePlaintext: true,
		PopulateOnMiss: false,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBox uses box instead of loading Options.KeyFile.
func WithBox(box *cryptobox.Box) Option {
	return func(s *Store) {
		if box != nil {
			s.loadBox = func() (*cryptobox.Box, error) { return box, nil }
		}
	}
}

// WithKeySerializer overrides the cache key layout.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(s *Store) {
		if keys != nil {
			s.keys = keys
		}
	}
}

// Store encrypts, versions and caches credentials.
type Store struct {
	repo   *durable.CredentialRepository
	aside  *repositorycache.Aside
	keys   cache.KeySerializer
	opts   Options
	logger *slog.Logger

	loadBox func() (*cryptobox.Box, error)
	boxOnce sync.Once
	box     *cryptobox.Box
	boxErr  error
}

// New returns a Store. The encryption key is not touched until the first
// Store or durable Get.
func New(repo *durable.CredentialRepository, aside *repositorycache.Aside, opts Options, options ...Option) *Store {
	if opts.KeyFile == "" {
		opts.KeyFile = DefaultKeyFile
	}
	s := &Store{
		repo:   repo,
		aside:  aside,
		keys:   cache.NewDefaultKeySerializer(),
		opts:   opts,
		logger: slog.Default(),
	}
	s.loadBox = func() (*cryptobox.Box, error) { return cryptobox.LoadOrGenerate(s.opts.KeyFile) }
	for _, o := range options {
		o(s)
	}
	return s
}

// Store encrypts plaintext and appends it as the next version for
// (service, key). The cache is written only after the durable commit.
func (s *Store) Store(ctx context.Context, service, key, plaintext string) (int64, error) {
	if err := validateRef(service, key); err != nil {
		return 0, err
	}

	box, err := s.cipher()
	if err != nil {
		return 0, err
	}

	ciphertext, err := box.Encrypt([]byte(plaintext))
	if err != nil {
		return 0, err
	}

	version, err := s.aside.Write(ctx, s.cacheKey(service, key), s.cachedForm(plaintext, ciphertext),
		func(ctx context.Context) (int64, error) {
			return s.repo.Append(ctx, service, key, ciphertext)
		})
	if err != nil {
		s.logger.ErrorContext(ctx, "credential write failed",
			slog.String("service", service),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return 0, err
	}

	s.logger.InfoContext(ctx, "credential stored",
		slog.String("service", service),
		slog.String("key", key),
		slog.Int64("version", version),
	)
	return version, nil
}

// Get returns the current plaintext for (service, key). found is false when
// nothing was ever stored. A value that cannot be decrypted is an error.
func (s *Store) Get(ctx context.Context, service, key string) (string, bool, error) {
	if err := validateRef(service, key); err != nil {
		return "", false, err
	}
	ckey := s.cacheKey(service, key)

	if s.opts.PopulateOnMiss {
		cached, found, err := s.aside.Read(ctx, ckey, func(ctx context.Context) (string, bool, error) {
			row, found, err := s.current(ctx, service, key)
			if err != nil || !found {
				return "", found, err
			}
			plaintext, err := s.decrypt(row.EncryptedValue)
			if err != nil {
				return "", false, err
			}
			return s.cachedForm(string(plaintext), row.EncryptedValue), true, nil
		})
		if err != nil || !found {
			return "", found, err
		}
		return s.fromCache(cached)
	}

	if cached, ok := s.aside.Lookup(ctx, ckey); ok {
		return s.fromCache(cached)
	}

	row, found, err := s.current(ctx, service, key)
	if err != nil || !found {
		return "", found, err
	}
	plaintext, err := s.decrypt(row.EncryptedValue)
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

// Forget drops every cached credential of service so the next Get reads the
// durable store. Durable rows are kept. It returns the number of cache keys
// that were tracked for service.
func (s *Store) Forget(ctx context.Context, service string) (int, error) {
	if err := validation.Validate(service, validation.Required, validation.By(validService)); err != nil {
		return 0, storeerr.Validation(err, "invalid credential service", map[string]string{"service": err.Error()})
	}

	n := s.aside.InvalidatePrefix(ctx, cache.NamespacePrefix(service))
	s.logger.InfoContext(ctx, "credential cache dropped",
		slog.String("service", service),
		slog.Int("keys", n),
	)
	return n, nil
}

func (s *Store) current(ctx context.Context, service, key string) (durable.CredentialRow, bool, error) {
	row, found, err := s.repo.Current(ctx, service, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential read failed",
			slog.String("service", service),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
	return row, found, err
}

func (s *Store) cipher() (*cryptobox.Box, error) {
	s.boxOnce.Do(func() {
		s.box, s.boxErr = s.loadBox()
		if s.boxErr != nil {
			s.logger.Error("credential key unavailable", slog.String("key_file", s.opts.KeyFile), slog.Any("error", s.boxErr))
		}
	})
	return s.box, s.boxErr
}

func (s *Store) decrypt(ciphertext []byte) ([]byte, error) {
	box, err := s.cipher()
	if err != nil {
		return nil, err
	}
	return box.Decrypt(ciphertext)
}

func (s *Store) cachedForm(plaintext string, ciphertext []byte) string {
	if s.opts.CachePlaintext {
		return plaintext
	}
	return base64.RawURLEncoding.EncodeToString(ciphertext)
}

func (s *Store) fromCache(cached string) (string, bool, error) {
	if s.opts.CachePlaintext {
		return cached, true, nil
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(cached)
	if err != nil {
		return "", false, storeerr.DecryptionFailure(err)
	}
	plaintext, err := s.decrypt(ciphertext)
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

func (s *Store) cacheKey(service, key string) string {
	return s.keys.SerializeKey(service, key)
}

type credentialRef struct {
	Service string `json:"service"`
	Key     string `json:"key"`
}

func validateRef(service, key string) error {
	ref := credentialRef{Service: service, Key: key}
	err := validation.ValidateStruct(&ref,
		validation.Field(&ref.Service, validation.Required, validation.By(validService)),
		validation.Field(&ref.Key, validation.Required, validation.By(validKey)),
	)
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	if errs, ok := err.(validation.Errors); ok {
		for field, fieldErr := range errs {
			fields[field] = fieldErr.Error()
		}
	}
	return storeerr.Validation(err, "invalid credential reference", fields)
}

func validKey(value any) error {
	s, _ := value.(string)
	return cache.ValidateKey(s)
}

// validService rejects the cache key separator so ("a:b", "c") and
// ("a", "b:c") never share a cache entry.
func validService(value any) error {
	s, _ := value.(string)
	if strings.Contains(s, cache.KeySeparator) {
		return errServiceSeparator
	}
	return cache.ValidateKey(s)
}
