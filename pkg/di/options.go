package di

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/internal/durable"
)

// Options are the bootstrap settings of a Container. They are read from
// SETTINGS_* environment variables.
type Options struct {
	Environment string `env:"SETTINGS_ENV" envDefault:"development"`
	ConfigDir   string `env:"SETTINGS_CONFIG_DIR" envDefault:"config"`

	DBDriver  string `env:"SETTINGS_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN     string `env:"SETTINGS_DB_DSN" envDefault:"file:settings.db?cache=shared&_busy_timeout=5000"`
	DBTrace   bool   `env:"SETTINGS_DB_TRACE" envDefault:"true"`
	DBMigrate bool   `env:"SETTINGS_DB_MIGRATE" envDefault:"true"`

	KeyFile                  string `env:"SETTINGS_KEY_FILE" envDefault:"key.key"`
	CredentialCachePlaintext bool   `env:"SETTINGS_CRED_CACHE_PLAINTEXT" envDefault:"true"`
	CredentialPopulateOnMiss bool   `env:"SETTINGS_CRED_POPULATE_ON_MISS" envDefault:"false"`

	CacheBackend  string        `env:"SETTINGS_CACHE_BACKEND" envDefault:"sturdyc"`
	CacheCapacity int           `env:"SETTINGS_CACHE_CAPACITY" envDefault:"10000"`
	CacheShards   int           `env:"SETTINGS_CACHE_SHARDS" envDefault:"256"`
	CacheTTL      time.Duration `env:"SETTINGS_CACHE_TTL"`
}

// OptionsFromEnv parses Options from the process environment.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// OptionsFromEnviron parses Options from the given variables only.
func OptionsFromEnviron(environ map[string]string) (Options, error) {
	var opts Options
	if err := env.ParseWithOptions(&opts, env.Options{Environment: environ}); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the options before any handle is opened.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Environment, validation.Required),
		validation.Field(&o.DBDriver, validation.Required,
			validation.In(durable.DriverSQLite, durable.DriverPostgres, durable.DriverPGX)),
		validation.Field(&o.DBDSN, validation.Required),
		validation.Field(&o.KeyFile, validation.Required),
		validation.Field(&o.CacheBackend, validation.Required,
			validation.In(cache.BackendSturdyc, cache.BackendTTLCache)),
		validation.Field(&o.CacheCapacity, validation.Min(1)),
		validation.Field(&o.CacheShards, validation.Min(1)),
		validation.Field(&o.CacheTTL, validation.Min(time.Duration(0))),
	)
}

// DurableConfig returns the durable store connection settings.
func (o Options) DurableConfig() durable.Config {
	return durable.Config{
		Driver: o.DBDriver,
		DSN:    o.DBDSN,
		DBName: "settings",
		Trace:  o.DBTrace,
	}
}

// CacheConfig returns the cache settings. A zero TTL means no expiry.
func (o Options) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Backend = o.CacheBackend
	cfg.Capacity = o.CacheCapacity
	cfg.NumShards = o.CacheShards
	if o.CacheTTL > 0 {
		cfg.TTL = o.CacheTTL
	}
	return cfg
}
