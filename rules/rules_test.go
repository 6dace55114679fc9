package rules

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-settings-store/internal/durable"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/pkg/testsupport"
	"github.com/goliatone/go-settings-store/repositorycache"
)

func str(s string) *string { return &s }

type fixture struct {
	db     *bun.DB
	cache  *testsupport.MemoryStore
	aside  *repositorycache.Aside
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testsupport.NewDB(t)
	mem := testsupport.NewMemoryStore()
	aside := repositorycache.New(mem, repositorycache.WithLogger(logger))

	return &fixture{
		db:     db,
		cache:  mem,
		aside:  aside,
		engine: New(durable.NewRuleRepository(db), aside, WithLogger(logger)),
	}
}

// seed inserts the default assignment table.
func (f *fixture) seed(t *testing.T) {
	t.Helper()

	seed := []Rule{
		{TestPriority: str("High"), Module: str("Auth"), AssignedTeam: "Security QA"},
		{TestPriority: str("Medium"), Module: str("Payment"), AssignedTeam: "Finance QA"},
		{DefectSeverity: str("Critical"), Module: str("Database"), AssignedTeam: "DB Admin"},
		{DefectSeverity: str("Minor"), Module: str("UI"), AssignedTeam: "Frontend QA"},
	}
	for _, r := range seed {
		_, err := f.engine.AddRule(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	tests := []struct {
		name     string
		criteria Criteria
		team     string
		matched  bool
	}{
		{
			name:     "priority and module",
			criteria: Criteria{}.With("test_priority", "High").With("module", "Auth"),
			team:     "Security QA",
			matched:  true,
		},
		{
			name:     "severity only",
			criteria: Criteria{}.With("defect_severity", "Critical"),
			team:     "DB Admin",
			matched:  true,
		},
		{
			name:     "camel case field",
			criteria: Criteria{}.With("testPriority", "Medium"),
			team:     "Finance QA",
			matched:  true,
		},
		{
			name:     "assigned team column",
			criteria: Criteria{}.With("assigned_team", "Frontend QA"),
			team:     "Frontend QA",
			matched:  true,
		},
		{
			name:     "no rule for value",
			criteria: Criteria{}.With("test_priority", "Low"),
			team:     NoMatch,
		},
		{
			name:     "nil column never matches",
			criteria: Criteria{}.With("module", "Auth").With("defect_severity", "High"),
			team:     NoMatch,
		},
		{
			name:     "unknown field",
			criteria: Criteria{}.With("reporter", "alice"),
			team:     NoMatch,
		},
		{
			name:     "no criteria picks first rule",
			criteria: nil,
			team:     "Security QA",
			matched:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.Evaluate(context.Background(), tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.team, got.Team)
			assert.Equal(t, tt.matched, got.Matched)
			if !tt.matched {
				assert.Zero(t, got.RuleID)
			}
		})
	}
}

func TestEvaluate_FirstRuleInInsertionOrderWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.engine.AddRule(ctx, Rule{Module: str("Auth"), AssignedTeam: "Security QA"})
	require.NoError(t, err)
	_, err = f.engine.AddRule(ctx, Rule{Module: str("Auth"), AssignedTeam: "Platform QA"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := f.engine.Evaluate(ctx, Criteria{{Field: "module", Value: "Auth"}})
		require.NoError(t, err)
		assert.Equal(t, "Security QA", got.Team)
		assert.Equal(t, first.ID, got.RuleID)
	}
}

func TestEvaluate_ByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	rules, err := f.engine.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 4)

	got, err := f.engine.Evaluate(ctx, Criteria{{Field: "id", Value: "3"}})
	require.NoError(t, err)
	assert.Equal(t, rules[2].AssignedTeam, got.Team)
}

func TestEvaluate_EmptyRuleSet(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.Evaluate(context.Background(), Criteria{{Field: "module", Value: "Auth"}})
	require.NoError(t, err)
	assert.Equal(t, Assignment{Team: NoMatch}, got)
}

func TestRules_CachedAsOneEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	_, err := f.engine.Evaluate(ctx, nil)
	require.NoError(t, err)
	_, ok := f.cache.Peek("rules:cached_rules")
	require.True(t, ok)

	hits := f.aside.Stats().Hits
	_, err = f.engine.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, hits+1, f.aside.Stats().Hits)
}

func TestAddRule_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	got, err := f.engine.Evaluate(ctx, Criteria{{Field: "module", Value: "Search"}})
	require.NoError(t, err)
	assert.False(t, got.Matched)

	added, err := f.engine.AddRule(ctx, Rule{Module: str("Search"), AssignedTeam: "Search QA"})
	require.NoError(t, err)
	assert.NotZero(t, added.ID)

	_, ok := f.cache.Peek("rules:cached_rules")
	assert.False(t, ok)

	got, err = f.engine.Evaluate(ctx, Criteria{{Field: "module", Value: "Search"}})
	require.NoError(t, err)
	assert.Equal(t, "Search QA", got.Team)
	assert.Equal(t, added.ID, got.RuleID)
}

func TestAddRule_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		rule Rule
	}{
		{name: "missing team", rule: Rule{Module: str("Auth")}},
		{name: "no criteria", rule: Rule{AssignedTeam: "Security QA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.AddRule(context.Background(), tt.rule)
			require.Error(t, err)
			assert.True(t, storeerr.IsValidation(err))
		})
	}

	rules, err := f.engine.Rules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRules_CorruptCacheEntryIsReloaded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	f.cache.Put("rules:cached_rules", "\xc1not msgpack")
	_, err := f.engine.Rules(ctx)
	require.Error(t, err)

	rules, err := f.engine.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
}

func TestEvaluate_DurableFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	_, err := f.engine.Evaluate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, storeerr.IsDurableUnavailable(err))
}

func TestNormalizeField(t *testing.T) {
	tests := map[string]string{
		"test_priority":  "test_priority",
		"testPriority":   "test_priority",
		"TestPriority":   "test_priority",
		"Test-Priority":  "test_priority",
		"test priority":  "test_priority",
		" module ":       "module",
		"DefectSeverity": "defect_severity",
		"defectSeverity": "defect_severity",
		"assignedTeam":   "assigned_team",
		"ID":             "id",
		"":               "",
	}

	for in, want := range tests {
		assert.Equal(t, want, normalizeField(in), in)
	}
}
