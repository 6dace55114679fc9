package di

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/configstore"
	"github.com/goliatone/go-settings-store/credstore"
	"github.com/goliatone/go-settings-store/internal/durable"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/repositorycache"
	"github.com/goliatone/go-settings-store/rules"
)

// Components that own a cache store.
const (
	ComponentConfig      = "config"
	ComponentCredentials = "credentials"
	ComponentRules       = "rules"
)

var components = []string{ComponentConfig, ComponentCredentials, ComponentRules}

// Container is the composition root. It opens the durable store once and one
// cache store per component, and hands them to the configuration, credential
// and rule components. Credential keys are chosen by callers, so no component
// shares a cache keyspace with another. Close releases every handle it opened.
type Container struct {
	opts   Options
	logger *slog.Logger

	db     *bun.DB
	caches map[string]cache.Store
	keys   cache.KeySerializer

	config      *configstore.Store
	credentials *credstore.Store
	rules       *rules.Engine

	closeOnce sync.Once
	closeErr  error
}

// ContainerOption customizes a Container.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger *slog.Logger
	db     *bun.DB
	caches map[string]cache.Store
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *containerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDB uses an already open database instead of Options.DBDSN.
// The Container still closes it.
func WithDB(db *bun.DB) ContainerOption {
	return func(c *containerConfig) { c.db = db }
}

// WithCacheStore uses store for component instead of building one from
// Options. The Container closes it.
func WithCacheStore(component string, store cache.Store) ContainerOption {
	return func(c *containerConfig) {
		if store != nil {
			c.caches[component] = store
		}
	}
}

// NewContainer validates opts, opens the handles and wires the components.
// Handles opened before a failure are released.
func NewContainer(ctx context.Context, opts Options, options ...ContainerOption) (*Container, error) {
	cfg := containerConfig{logger: slog.Default(), caches: map[string]cache.Store{}}
	for _, o := range options {
		o(&cfg)
	}

	if err := opts.Validate(); err != nil {
		return nil, storeerr.Validation(err, "invalid container options", nil)
	}

	c := &Container{
		opts:   opts,
		logger: cfg.logger,
		db:     cfg.db,
		caches: make(map[string]cache.Store, len(components)),
		keys:   cache.NewDefaultKeySerializer(),
	}

	for _, component := range components {
		if store, ok := cfg.caches[component]; ok {
			c.caches[component] = store
			continue
		}
		store, err := cache.NewStore(opts.CacheConfig())
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.caches[component] = store
	}

	if c.db == nil {
		db, err := durable.Open(ctx, opts.DurableConfig())
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.db = db
	}

	if opts.DBMigrate {
		if err := durable.Migrate(ctx, c.db); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	snapshot := configstore.LoadSnapshot(opts.Environment, opts.ConfigDir,
		configstore.WithSnapshotLogger(c.logger))

	c.config = configstore.New(snapshot,
		durable.NewConfigurationRepository(c.db),
		c.newAside(ComponentConfig),
		configstore.WithLogger(c.logger),
		configstore.WithKeySerializer(c.keys),
	)

	c.credentials = credstore.New(
		durable.NewCredentialRepository(c.db),
		c.newAside(ComponentCredentials),
		credstore.Options{
			KeyFile:        opts.KeyFile,
			CachePlaintext: opts.CredentialCachePlaintext,
			PopulateOnMiss: opts.CredentialPopulateOnMiss,
		},
		credstore.WithLogger(c.logger),
		credstore.WithKeySerializer(c.keys),
	)

	c.rules = rules.New(
		durable.NewRuleRepository(c.db),
		c.newAside(ComponentRules),
		rules.WithLogger(c.logger),
	)

	c.logger.Debug("container ready",
		slog.String("environment", opts.Environment),
		slog.String("db_driver", opts.DBDriver),
		slog.String("cache_backend", opts.CacheBackend),
		slog.Bool("config_degraded", snapshot.Degraded()),
	)
	return c, nil
}

// NewContainerFromEnv builds a Container from SETTINGS_* variables.
func NewContainerFromEnv(ctx context.Context, options ...ContainerOption) (*Container, error) {
	opts, err := OptionsFromEnv()
	if err != nil {
		return nil, storeerr.Validation(err, "invalid environment", nil)
	}
	return NewContainer(ctx, opts, options...)
}

func (c *Container) newAside(component string) *repositorycache.Aside {
	return repositorycache.New(c.caches[component], repositorycache.WithLogger(c.logger))
}

// Options returns the options the Container was built with.
func (c *Container) Options() Options { return c.opts }

// Logger returns the shared logger.
func (c *Container) Logger() *slog.Logger { return c.logger }

// DB returns the durable store handle.
func (c *Container) DB() *bun.DB { return c.db }

// CacheStore returns the cache store owned by component, or nil.
func (c *Container) CacheStore(component string) cache.Store { return c.caches[component] }

// KeySerializer returns the cache key serializer.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keys }

// ConfigStore returns the configuration store.
func (c *Container) ConfigStore() *configstore.Store { return c.config }

// CredentialStore returns the credential store.
func (c *Container) CredentialStore() *credstore.Store { return c.credentials }

// RuleEngine returns the rule engine.
func (c *Container) RuleEngine() *rules.Engine { return c.rules }

// Close releases the database and the caches. It is safe to call more than once.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		var result *multierror.Error
		if c.db != nil {
			if err := c.db.Close(); err != nil {
				result = multierror.Append(result, storeerr.DurableUnavailable(err, "close"))
			}
		}
		for _, component := range components {
			closer, ok := c.caches[component].(io.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, storeerr.CacheUnavailable(err, "close", component))
			}
		}
		c.closeErr = result.ErrorOrNil()
	})
	return c.closeErr
}
