package durable

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

type index struct {
	name    string
	model   any
	columns []string
}

var indexes = []index{
	{name: "configurations_key_version_uniq", model: (*ConfigurationRow)(nil), columns: []string{"config_key", "version"}},
	{name: "credentials_service_key_version_uniq", model: (*CredentialRow)(nil), columns: []string{"service_name", "config_key", "version"}},
}

// Migrate creates the tables and the unique version indexes if missing.
// It is idempotent.
func Migrate(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*ConfigurationRow)(nil),
		(*CredentialRow)(nil),
		(*RuleRow)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return storeerr.DurableUnavailable(err, "migrate")
		}
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Unique().
			IfNotExists().
			Column(idx.columns...).
			Exec(ctx)
		if err != nil {
			return storeerr.DurableUnavailable(err, "migrate")
		}
	}

	return nil
}
