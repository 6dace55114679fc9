package durable

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bunotel"

	// database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// DefaultDSN is an in-process sqlite database shared by every connection.
const DefaultDSN = "file:settings?mode=memory&cache=shared"

// Config holds the durable store connection settings.
type Config struct {
	Driver string
	DSN    string
	// DBName is reported on query spans.
	DBName string
	// Trace installs the bunotel query hook.
	Trace bool
}

// DefaultConfig returns a sqlite in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		DSN:    DefaultDSN,
		DBName: "settings",
		Trace:  true,
	}
}

// Validate checks the driver and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverPGX:
	default:
		return &ConfigError{Field: "Driver", Message: "must be one of sqlite3, postgres, pgx"}
	}
	if strings.TrimSpace(c.DSN) == "" {
		return &ConfigError{Field: "DSN", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a durable store configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "durable config error: " + e.Field + " " + e.Message
}

// Open connects to the configured database and verifies the connection.
// sqlite connections are pinned to a single open connection so writers
// serialize on the driver.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, storeerr.DurableUnavailable(err, "open")
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverSQLite:
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.Trace {
		opts := []bunotel.Option{}
		if cfg.DBName != "" {
			opts = append(opts, bunotel.WithDBName(cfg.DBName))
		}
		db.AddQueryHook(bunotel.NewQueryHook(opts...))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeerr.DurableUnavailable(err, "ping")
	}

	return db, nil
}
