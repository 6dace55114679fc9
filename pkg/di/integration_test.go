package di

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-settings-store/configstore"
	"github.com/goliatone/go-settings-store/pkg/testsupport"
	"github.com/goliatone/go-settings-store/rules"
)

func str(s string) *string { return &s }

func integrationContainer(t *testing.T) *Container {
	t.Helper()

	opts := testOptions(t)
	opts.ConfigDir = testsupport.ConfigDir(t, map[string]string{
		"development.json": `{
			"retries": 3,
			"database": {"pool_size": 5},
			"feature_flags": {"new_dashboard": false}
		}`,
	})
	return newTestContainer(t, opts)
}

func TestIntegration_SnapshotWithEnvOverride(t *testing.T) {
	t.Setenv("RETRIES", "5")
	container := integrationContainer(t)
	store := container.ConfigStore()

	if store.Snapshot().Degraded() {
		t.Fatalf("unexpected degraded snapshot: %v", store.Snapshot().LoadError())
	}

	retries, ok := store.Get("retries")
	if !ok || retries != "5" {
		t.Errorf("expected env override 5, got %v (found=%v)", retries, ok)
	}

	settings, err := store.Settings()
	if err != nil {
		t.Fatalf("Settings() failed: %v", err)
	}
	if settings.Retries != 5 || settings.Database.PoolSize != 5 {
		t.Errorf("unexpected settings %+v", settings)
	}

	store.EnableFeature("new_dashboard")
	if !store.IsFeatureEnabled("new_dashboard") {
		t.Error("expected feature to be enabled")
	}
}

func TestIntegration_VersionedConfiguration(t *testing.T) {
	ctx := context.Background()
	store := integrationContainer(t).ConfigStore()

	for i, value := range []string{"3", "5"} {
		version, err := store.SetVersioned(ctx, "max_retries", value)
		if err != nil {
			t.Fatalf("SetVersioned() failed: %v", err)
		}
		if version != int64(i+1) {
			t.Errorf("expected version %d, got %d", i+1, version)
		}

		got, found, err := store.GetVersioned(ctx, "max_retries")
		if err != nil || !found || got != value {
			t.Errorf("expected %q, got %q found=%v err=%v", value, got, found, err)
		}
	}

	result, err := store.BulkUpdate(ctx, []configstore.Update{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	})
	if err != nil {
		t.Fatalf("BulkUpdate() failed: %v", err)
	}
	if len(result.Applied) != 2 || result.Applied[0].Version != 1 || result.Applied[1].Version != 1 {
		t.Errorf("expected two independently versioned entries, got %+v", result.Applied)
	}
}

func TestIntegration_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := integrationContainer(t).ConfigStore()

	const writers = 16
	var mu sync.Mutex
	var versions []int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			v, err := store.SetVersioned(gctx, "hot_key", fmt.Sprint(i))
			if err != nil {
				return err
			}
			mu.Lock()
			versions = append(versions, v)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent SetVersioned() failed: %v", err)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for i, v := range versions {
		if v != int64(i+1) {
			t.Fatalf("expected gap free versions 1..%d, got %v", writers, versions)
		}
	}

	current, found, err := store.Current(ctx, "hot_key")
	if err != nil || !found {
		t.Fatalf("Current() failed: found=%v err=%v", found, err)
	}
	cached, found, err := store.GetVersioned(ctx, "hot_key")
	if err != nil || !found {
		t.Fatalf("GetVersioned() failed: found=%v err=%v", found, err)
	}
	if cached != current.Value {
		t.Errorf("cache holds %q, durable current is %q", cached, current.Value)
	}
}

func TestIntegration_Credentials(t *testing.T) {
	ctx := context.Background()
	creds := integrationContainer(t).CredentialStore()

	version, err := creds.Store(ctx, "stripe", "api_key", "sk_live_123")
	if err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}

	value, found, err := creds.Get(ctx, "stripe", "api_key")
	if err != nil || !found || value != "sk_live_123" {
		t.Errorf("expected sk_live_123, got %q found=%v err=%v", value, found, err)
	}
}

func TestIntegration_RuleEvaluation(t *testing.T) {
	ctx := context.Background()
	engine := integrationContainer(t).RuleEngine()

	if _, err := engine.AddRule(ctx, rules.Rule{TestPriority: str("High"), Module: str("Auth"), AssignedTeam: "Security QA"}); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}

	got, err := engine.Evaluate(ctx, rules.Criteria{{Field: "test_priority", Value: "High"}, {Field: "module", Value: "Auth"}})
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got.Team != "Security QA" {
		t.Errorf("expected Security QA, got %q", got.Team)
	}

	got, err = engine.Evaluate(ctx, rules.Criteria{{Field: "module", Value: "Billing"}})
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got.Team != rules.NoMatch || got.Matched {
		t.Errorf("expected no match sentinel, got %+v", got)
	}
}

func TestIntegration_CredentialKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	container := integrationContainer(t)
	config := container.ConfigStore()
	creds := container.CredentialStore()
	engine := container.RuleEngine()

	if _, err := config.SetVersioned(ctx, "max_retries", "3"); err != nil {
		t.Fatalf("SetVersioned() failed: %v", err)
	}
	if _, err := engine.AddRule(ctx, rules.Rule{Module: str("Auth"), AssignedTeam: "Security QA"}); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	if _, err := engine.Evaluate(ctx, rules.Criteria{{Field: "module", Value: "Auth"}}); err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}

	// credential keys that look like config and rule cache keys
	if _, err := creds.Store(ctx, "config", "max_retries", "sk_live_SECRET"); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := creds.Store(ctx, "rules", "cached_rules", "x"); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	value, found, err := config.GetVersioned(ctx, "max_retries")
	if err != nil || !found || value != "3" {
		t.Errorf("expected config value 3, got %q found=%v err=%v", value, found, err)
	}

	got, err := engine.Evaluate(ctx, rules.Criteria{{Field: "module", Value: "Auth"}})
	if err != nil {
		t.Fatalf("Evaluate() failed after credential write: %v", err)
	}
	if got.Team != "Security QA" {
		t.Errorf("expected Security QA, got %q", got.Team)
	}

	secret, found, err := creds.Get(ctx, "config", "max_retries")
	if err != nil || !found || secret != "sk_live_SECRET" {
		t.Errorf("expected credential to round trip, got %q found=%v err=%v", secret, found, err)
	}
}
