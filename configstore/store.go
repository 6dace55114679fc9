package configstore

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/internal/durable"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/repositorycache"
)

// CacheNamespace prefixes every configuration cache key.
const CacheNamespace = "config"

// ConfigEntry is one committed version of a configuration value.
type ConfigEntry struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// Update is a single entry of a bulk update payload.
type Update struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Validate checks the key is usable as a cache and durable key.
func (u Update) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Key, validation.Required, validation.By(validKey)),
	)
}

// BulkResult reports the entries a bulk update committed.
type BulkResult struct {
	BatchID uuid.UUID     `json:"batch_id"`
	Applied []ConfigEntry `json:"applied"`
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

// WithKeySerializer overrides the cache key layout.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(s *Store) {
		if keys != nil {
			s.keys = keys
		}
	}
}

// Store combines the process snapshot with versioned, durably stored
// configuration values kept in a cache-aside cache.
type Store struct {
	snapshot *Snapshot
	repo     *durable.ConfigurationRepository
	aside    *repositorycache.Aside
	keys     cache.KeySerializer
	logger   *slog.Logger
}

// New returns a Store. A nil snapshot is replaced by an empty one.
func New(snapshot *Snapshot, repo *durable.ConfigurationRepository, aside *repositorycache.Aside, opts ...Option) *Store {
	if snapshot == nil {
		snapshot = NewSnapshot(nil)
	}
	s := &Store{
		snapshot: snapshot,
		repo:     repo,
		aside:    aside,
		keys:     cache.NewDefaultKeySerializer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the process snapshot.
func (s *Store) Snapshot() *Snapshot { return s.snapshot }

// Get resolves a dotted key against the snapshot only.
func (s *Store) Get(dottedKey string) (any, bool) { return s.snapshot.Get(dottedKey) }

// ListAll returns a copy of the snapshot.
func (s *Store) ListAll() map[string]any { return s.snapshot.ListAll() }

// Settings returns the typed view of the snapshot.
func (s *Store) Settings() (Settings, error) { return s.snapshot.Settings() }

func (s *Store) EnableFeature(flag string)         { s.snapshot.EnableFeature(flag) }
func (s *Store) DisableFeature(flag string)        { s.snapshot.DisableFeature(flag) }
func (s *Store) IsFeatureEnabled(flag string) bool { return s.snapshot.IsFeatureEnabled(flag) }

// GetVersioned returns the current durable value of key, from the cache when
// possible. found is false when the key has never been written.
func (s *Store) GetVersioned(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}

	return s.aside.Read(ctx, s.cacheKey(key), func(ctx context.Context) (string, bool, error) {
		row, found, err := s.repo.Current(ctx, key)
		if err != nil {
			s.logger.ErrorContext(ctx, "configuration read failed", slog.String("key", key), slog.Any("error", err))
			return "", false, err
		}
		return row.Value, found, nil
	})
}

// SetVersioned stores value as the next version of key and returns it.
// The cache is updated only after the durable write commits.
func (s *Store) SetVersioned(ctx context.Context, key, value string) (int64, error) {
	if err := checkKey(key); err != nil {
		return 0, err
	}

	version, err := s.aside.Write(ctx, s.cacheKey(key), value, func(ctx context.Context) (int64, error) {
		return s.repo.Append(ctx, key, value)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "configuration write failed", slog.String("key", key), slog.Any("error", err))
		return 0, err
	}

	s.logger.DebugContext(ctx, "configuration updated", slog.String("key", key), slog.Int64("version", version))
	return version, nil
}

// BulkUpdate validates every update and then applies them in order, each as
// its own versioned write. It is not atomic: when update i fails, updates
// 0..i-1 stay committed and cached and are listed in the result.
func (s *Store) BulkUpdate(ctx context.Context, updates []Update) (BulkResult, error) {
	result := BulkResult{BatchID: uuid.New(), Applied: []ConfigEntry{}}
	if err := validateUpdates(updates); err != nil {
		return result, err
	}

	for i, u := range updates {
		version, err := s.SetVersioned(ctx, u.Key, u.Value)
		if err != nil {
			s.logger.ErrorContext(ctx, "bulk update interrupted",
				slog.String("batch_id", result.BatchID.String()),
				slog.Int("index", i),
				slog.Int("applied", len(result.Applied)),
			)
			return result, fmt.Errorf("configstore: bulk update failed at index %d (%s): %w", i, u.Key, err)
		}
		result.Applied = append(result.Applied, ConfigEntry{Key: u.Key, Value: u.Value, Version: version})
	}

	s.logger.InfoContext(ctx, "bulk update applied",
		slog.String("batch_id", result.BatchID.String()),
		slog.Int("count", len(result.Applied)),
	)
	return result, nil
}

// BulkUpdateAtomic commits every update in one transaction. The cache is
// refreshed only after the commit; a failure writes nothing.
func (s *Store) BulkUpdateAtomic(ctx context.Context, updates []Update) (BulkResult, error) {
	result := BulkResult{BatchID: uuid.New(), Applied: []ConfigEntry{}}
	if err := validateUpdates(updates); err != nil {
		return result, err
	}

	entries := make([]durable.KeyValue, len(updates))
	for i, u := range updates {
		entries[i] = durable.KeyValue{Key: u.Key, Value: u.Value}
	}

	rows, err := s.repo.AppendMany(ctx, entries)
	if err != nil {
		s.logger.ErrorContext(ctx, "atomic bulk update failed",
			slog.String("batch_id", result.BatchID.String()),
			slog.Any("error", err),
		)
		return result, err
	}

	for _, row := range rows {
		s.aside.Refresh(ctx, s.cacheKey(row.Key), row.Value, row.Version)
		result.Applied = append(result.Applied, entryFromRow(row))
	}

	s.logger.InfoContext(ctx, "atomic bulk update applied",
		slog.String("batch_id", result.BatchID.String()),
		slog.Int("count", len(result.Applied)),
	)
	return result, nil
}

// Current returns the latest committed entry of key straight from the
// durable store.
func (s *Store) Current(ctx context.Context, key string) (ConfigEntry, bool, error) {
	if err := checkKey(key); err != nil {
		return ConfigEntry{}, false, err
	}
	row, found, err := s.repo.Current(ctx, key)
	if err != nil || !found {
		return ConfigEntry{}, false, err
	}
	return entryFromRow(row), true, nil
}

// History returns every committed version of key, oldest first.
func (s *Store) History(ctx context.Context, key string) ([]ConfigEntry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	rows, err := s.repo.History(ctx, key)
	if err != nil {
		return nil, err
	}
	entries := make([]ConfigEntry, len(rows))
	for i, row := range rows {
		entries[i] = entryFromRow(row)
	}
	return entries, nil
}

func (s *Store) cacheKey(key string) string {
	return s.keys.SerializeKey(CacheNamespace, key)
}

func entryFromRow(row durable.ConfigurationRow) ConfigEntry {
	return ConfigEntry{Key: row.Key, Value: row.Value, Version: row.Version}
}

func validKey(value any) error {
	key, _ := value.(string)
	return cache.ValidateKey(key)
}

func checkKey(key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return storeerr.Validation(err, "invalid configuration key", map[string]string{"key": err.Error()})
	}
	return nil
}

func validateUpdates(updates []Update) error {
	if len(updates) == 0 {
		return storeerr.Validation(validation.ErrRequired, "bulk update payload is empty", map[string]string{"updates": "cannot be blank"})
	}

	fields := map[string]string{}
	for i, u := range updates {
		err := u.Validate()
		if err == nil {
			continue
		}
		if errs, ok := err.(validation.Errors); ok {
			for field, fieldErr := range errs {
				fields[fmt.Sprintf("%d.%s", i, field)] = fieldErr.Error()
			}
			continue
		}
		fields[fmt.Sprintf("%d", i)] = err.Error()
	}

	if len(fields) > 0 {
		return storeerr.Validation(validation.Errors{"updates": fmt.Errorf("%d invalid entries", len(fields))},
			"invalid bulk update payload", fields)
	}
	return nil
}
