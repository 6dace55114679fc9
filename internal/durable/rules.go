package durable

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/pkg/storeerr"
)

// RuleRepository reads and writes assignment rules.
type RuleRepository struct {
	db bun.IDB
}

// NewRuleRepository returns a repository bound to db.
func NewRuleRepository(db bun.IDB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Insert adds a rule and sets its ID.
func (r *RuleRepository) Insert(ctx context.Context, row *RuleRow) error {
	if _, err := r.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return storeerr.DurableUnavailable(err, "insert rule")
	}
	return nil
}

// List returns every rule in insertion order.
func (r *RuleRepository) List(ctx context.Context) ([]RuleRow, error) {
	rows := []RuleRow{}
	if err := r.db.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, storeerr.DurableUnavailable(err, "list rules")
	}
	return rows, nil
}
