package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/internal/durable"
)

// SQLiteDSN returns a DSN for a private in-memory sqlite database.
func SQLiteDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared"
}

// NewDB opens a private in-memory sqlite database with the schema migrated.
// The database is closed when the test ends.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	cfg := durable.DefaultConfig()
	cfg.DSN = SQLiteDSN()
	cfg.Trace = false

	db, err := durable.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := durable.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}
