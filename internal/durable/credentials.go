package durable

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

const appendCredentialSQL = `INSERT INTO credentials (service_name, config_key, encrypted_value, version)
SELECT ?, ?, ?, COALESCE(MAX(version), 0) + 1 FROM credentials WHERE service_name = ? AND config_key = ?
RETURNING version`

// CredentialRepository stores encrypted credentials as an append-only
// version log per (service, key).
type CredentialRepository struct {
	db bun.IDB
}

// NewCredentialRepository returns a repository bound to db.
func NewCredentialRepository(db bun.IDB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Append stores ciphertext as the next version for (service, key).
func (r *CredentialRepository) Append(ctx context.Context, service, key string, ciphertext []byte) (int64, error) {
	var version int64
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		return r.db.NewRaw(appendCredentialSQL, service, key, ciphertext, service, key).Scan(ctx, &version)
	})
	if err != nil {
		return 0, storeerr.DurableUnavailable(err, "append credential")
	}
	return version, nil
}

// Current returns the highest version for (service, key).
func (r *CredentialRepository) Current(ctx context.Context, service, key string) (CredentialRow, bool, error) {
	var row CredentialRow
	err := r.db.NewSelect().
		Model(&row).
		Where("service_name = ?", service).
		Where("config_key = ?", key).
		OrderExpr("version DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialRow{}, false, nil
	}
	if err != nil {
		return CredentialRow{}, false, storeerr.DurableUnavailable(err, "current credential")
	}
	return row, true, nil
}
