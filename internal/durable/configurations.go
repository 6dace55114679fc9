package durable

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

const appendConfigurationSQL = `INSERT INTO configurations (config_key, config_value, version)
SELECT ?, ?, COALESCE(MAX(version), 0) + 1 FROM configurations WHERE config_key = ?
RETURNING version`

// KeyValue is a single configuration write.
type KeyValue struct {
	Key   string
	Value string
}

// ConfigurationRepository stores configuration values as an append-only
// version log per key.
type ConfigurationRepository struct {
	db bun.IDB
}

// NewConfigurationRepository returns a repository bound to db.
func NewConfigurationRepository(db bun.IDB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// Append stores value as the next version of key and returns that version.
// The version is computed and inserted in one statement.
func (r *ConfigurationRepository) Append(ctx context.Context, key, value string) (int64, error) {
	var version int64
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		v, err := appendConfiguration(ctx, r.db, key, value)
		version = v
		return err
	})
	if err != nil {
		return 0, storeerr.DurableUnavailable(err, "append configuration")
	}
	return version, nil
}

// AppendMany appends every entry inside a single transaction. Either all
// entries are committed or none are.
func (r *ConfigurationRepository) AppendMany(ctx context.Context, entries []KeyValue) ([]ConfigurationRow, error) {
	var rows []ConfigurationRow
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, e := range entries {
				v, err := appendConfiguration(ctx, tx, e.Key, e.Value)
				if err != nil {
					return err
				}
				rows = append(rows, ConfigurationRow{Key: e.Key, Value: e.Value, Version: v})
			}
			return nil
		})
	})
	if err != nil {
		return nil, storeerr.DurableUnavailable(err, "append configurations")
	}
	return rows, nil
}

// Current returns the highest version of key. found is false when the key
// has never been written.
func (r *ConfigurationRepository) Current(ctx context.Context, key string) (ConfigurationRow, bool, error) {
	var row ConfigurationRow
	err := r.db.NewSelect().
		Model(&row).
		Where("config_key = ?", key).
		OrderExpr("version DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfigurationRow{}, false, nil
	}
	if err != nil {
		return ConfigurationRow{}, false, storeerr.DurableUnavailable(err, "current configuration")
	}
	return row, true, nil
}

// History returns every version of key, oldest first.
func (r *ConfigurationRepository) History(ctx context.Context, key string) ([]ConfigurationRow, error) {
	var rows []ConfigurationRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("config_key = ?", key).
		OrderExpr("version ASC").
		Scan(ctx)
	if err != nil {
		return nil, storeerr.DurableUnavailable(err, "configuration history")
	}
	return rows, nil
}

func appendConfiguration(ctx context.Context, db bun.IDB, key, value string) (int64, error) {
	var version int64
	if err := db.NewRaw(appendConfigurationSQL, key, value, key).Scan(ctx, &version); err != nil {
		return 0, err
	}
	return version, nil
}
