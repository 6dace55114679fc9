package di

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/pkg/testsupport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(t *testing.T) Options {
	t.Helper()

	opts, err := OptionsFromEnviron(map[string]string{
		"SETTINGS_ENV":        "development",
		"SETTINGS_CONFIG_DIR": t.TempDir(),
		"SETTINGS_DB_DSN":     testsupport.SQLiteDSN(),
		"SETTINGS_DB_TRACE":   "false",
		"SETTINGS_KEY_FILE":   filepath.Join(t.TempDir(), "key.key"),
	})
	if err != nil {
		t.Fatalf("OptionsFromEnviron() failed: %v", err)
	}
	return opts
}

func newTestContainer(t *testing.T, opts Options, options ...ContainerOption) *Container {
	t.Helper()

	options = append([]ContainerOption{WithLogger(quietLogger())}, options...)
	container, err := NewContainer(context.Background(), opts, options...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container
}

func TestOptionsFromEnviron_Defaults(t *testing.T) {
	opts, err := OptionsFromEnviron(map[string]string{})
	if err != nil {
		t.Fatalf("OptionsFromEnviron() failed: %v", err)
	}

	if opts.Environment != "development" {
		t.Errorf("expected development environment, got %q", opts.Environment)
	}
	if opts.DBDriver != "sqlite3" {
		t.Errorf("expected sqlite3 driver, got %q", opts.DBDriver)
	}
	if opts.CacheBackend != cache.BackendSturdyc {
		t.Errorf("expected sturdyc backend, got %q", opts.CacheBackend)
	}
	if !opts.CredentialCachePlaintext || opts.CredentialPopulateOnMiss {
		t.Error("expected credential cache defaults to cache plaintext without repopulation")
	}
	if opts.CacheConfig().TTL != cache.NoExpiry {
		t.Errorf("expected zero TTL to map to NoExpiry, got %v", opts.CacheConfig().TTL)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestOptionsFromEnviron_Overrides(t *testing.T) {
	opts, err := OptionsFromEnviron(map[string]string{
		"SETTINGS_CACHE_BACKEND":         "ttlcache",
		"SETTINGS_CACHE_CAPACITY":        "42",
		"SETTINGS_CACHE_TTL":             "90s",
		"SETTINGS_CRED_POPULATE_ON_MISS": "true",
	})
	if err != nil {
		t.Fatalf("OptionsFromEnviron() failed: %v", err)
	}

	cfg := opts.CacheConfig()
	if cfg.Backend != cache.BackendTTLCache || cfg.Capacity != 42 || cfg.TTL != 90*time.Second {
		t.Errorf("unexpected cache config %+v", cfg)
	}
	if !opts.CredentialPopulateOnMiss {
		t.Error("expected populate on miss to be enabled")
	}
}

func TestOptionsFromEnviron_InvalidValue(t *testing.T) {
	if _, err := OptionsFromEnviron(map[string]string{"SETTINGS_CACHE_CAPACITY": "lots"}); err == nil {
		t.Error("expected parse error for non numeric capacity")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{name: "unknown driver", mutate: func(o *Options) { o.DBDriver = "mysql" }},
		{name: "empty dsn", mutate: func(o *Options) { o.DBDSN = "" }},
		{name: "unknown backend", mutate: func(o *Options) { o.CacheBackend = "redis" }},
		{name: "zero capacity", mutate: func(o *Options) { o.CacheCapacity = 0 }},
		{name: "negative ttl", mutate: func(o *Options) { o.CacheTTL = -time.Second }},
		{name: "empty key file", mutate: func(o *Options) { o.KeyFile = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewContainer(t *testing.T) {
	opts := testOptions(t)
	container := newTestContainer(t, opts)

	if container.DB() == nil {
		t.Error("Container should have a non-nil database")
	}
	for _, component := range []string{ComponentConfig, ComponentCredentials, ComponentRules} {
		if container.CacheStore(component) == nil {
			t.Errorf("Container should have a cache store for %s", component)
		}
	}
	if container.CacheStore(ComponentConfig) == container.CacheStore(ComponentCredentials) ||
		container.CacheStore(ComponentConfig) == container.CacheStore(ComponentRules) ||
		container.CacheStore(ComponentCredentials) == container.CacheStore(ComponentRules) {
		t.Error("components must not share a cache store")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}
	if container.ConfigStore() == nil || container.CredentialStore() == nil || container.RuleEngine() == nil {
		t.Fatal("Container should wire every component")
	}
	if container.Options().DBDSN != opts.DBDSN {
		t.Errorf("Expected DSN %q, got %q", opts.DBDSN, container.Options().DBDSN)
	}
	if !container.ConfigStore().Snapshot().Degraded() {
		t.Error("expected degraded snapshot for an empty config dir")
	}
}

func TestNewContainer_TTLCacheBackend(t *testing.T) {
	opts := testOptions(t)
	opts.CacheBackend = cache.BackendTTLCache
	container := newTestContainer(t, opts)

	if _, ok := container.CacheStore(ComponentRules).(io.Closer); !ok {
		t.Error("expected ttlcache store to be closable")
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestNewContainer_InvalidOptions(t *testing.T) {
	opts := testOptions(t)
	opts.DBDriver = "oracle"

	container, err := NewContainer(context.Background(), opts, WithLogger(quietLogger()))
	if err == nil {
		t.Fatal("expected error for invalid options")
	}
	if container != nil {
		t.Error("expected nil container on error")
	}
	if !storeerr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNewContainer_WithInjectedHandles(t *testing.T) {
	opts := testOptions(t)
	db := testsupport.NewDB(t)
	store := testsupport.NewMemoryStore()

	container := newTestContainer(t, opts, WithDB(db), WithCacheStore(ComponentCredentials, store))

	if container.DB() != db {
		t.Error("expected injected database")
	}
	if container.CacheStore(ComponentCredentials) != store {
		t.Error("expected injected credential cache store")
	}
	if container.CacheStore(ComponentConfig) == store {
		t.Error("expected config to keep its own cache store")
	}
}

func TestContainer_CloseIsIdempotent(t *testing.T) {
	container := newTestContainer(t, testOptions(t))

	if err := container.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Errorf("second Close() should return the first result, got %v", err)
	}
}
