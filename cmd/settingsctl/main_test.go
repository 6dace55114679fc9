package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-settings-store/configstore"
	"github.com/goliatone/go-settings-store/pkg/testsupport"
	"github.com/goliatone/go-settings-store/rules"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()

	dir := t.TempDir()
	configDir := testsupport.ConfigDir(t, map[string]string{
		"development.yaml": "retries: 3\ndatabase:\n  pool_size: 5\nfeature_flags:\n  new_dashboard: true\n",
	})
	return &cli{t: t, base: []string{
		"--env", "development",
		"--config-dir", configDir,
		"--db-driver", "sqlite3",
		"--db-dsn", "file:" + filepath.Join(dir, "settings.db") + "?_busy_timeout=5000",
		"--key-file", filepath.Join(dir, "key.key"),
		"--log-level", "error",
	}}
}

func (c *cli) run(args ...string) ([]byte, error) {
	c.t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.Execute()
	return out.Bytes(), err
}

func (c *cli) mustRun(dest any, args ...string) {
	c.t.Helper()

	out, err := c.run(args...)
	require.NoError(c.t, err, "settingsctl %v", args)
	require.NoError(c.t, json.Unmarshal(out, dest), "output: %s", out)
}

func TestConfigCommands(t *testing.T) {
	c := newCLI(t)

	var entry configstore.ConfigEntry
	c.mustRun(&entry, "config", "set", "max_retries", "3")
	assert.Equal(t, int64(1), entry.Version)
	c.mustRun(&entry, "config", "set", "max_retries", "5")
	assert.Equal(t, int64(2), entry.Version)

	var value valueResult
	c.mustRun(&value, "config", "get-versioned", "max_retries")
	assert.True(t, value.Found)
	assert.Equal(t, "5", value.Value)

	var missing valueResult
	c.mustRun(&missing, "config", "get-versioned", "never_written")
	assert.False(t, missing.Found)

	var history []configstore.ConfigEntry
	c.mustRun(&history, "config", "history", "max_retries")
	require.Len(t, history, 2)
	assert.Equal(t, "3", history[0].Value)

	var fromFile valueResult
	c.mustRun(&fromFile, "config", "get", "database.pool_size")
	assert.True(t, fromFile.Found)
	assert.EqualValues(t, 5, fromFile.Value)

	var all map[string]any
	c.mustRun(&all, "config", "list")
	assert.Contains(t, all, "retries")
}

func TestConfigBulkCommand(t *testing.T) {
	c := newCLI(t)

	var result configstore.BulkResult
	c.mustRun(&result, "config", "bulk", "a=1", "b=2")
	require.Len(t, result.Applied, 2)
	assert.Equal(t, int64(1), result.Applied[1].Version)

	c.mustRun(&result, "config", "bulk", "--atomic", "a=3", "c=4")
	require.Len(t, result.Applied, 2)
	assert.Equal(t, int64(2), result.Applied[0].Version)

	_, err := c.run("config", "bulk", "missing-separator")
	assert.Error(t, err)
}

func TestFeatureCommands(t *testing.T) {
	c := newCLI(t)

	var status featureResult
	c.mustRun(&status, "feature", "status", "new_dashboard")
	assert.True(t, status.Enabled)

	c.mustRun(&status, "feature", "disable", "new_dashboard")
	assert.False(t, status.Enabled)

	c.mustRun(&status, "feature", "enable", "beta_reports")
	assert.True(t, status.Enabled)
}

func TestCredCommands(t *testing.T) {
	c := newCLI(t)

	var stored credentialResult
	c.mustRun(&stored, "cred", "store", "stripe", "api_key", "sk_live_123")
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, stored.Value, "store never echoes the secret")

	// each invocation starts with an empty cache, so this reads the durable row
	var got credentialResult
	c.mustRun(&got, "cred", "get", "stripe", "api_key")
	assert.True(t, got.Found)
	assert.Equal(t, "sk_live_123", got.Value)
}

func TestRulesAndAssign(t *testing.T) {
	c := newCLI(t)

	var added rules.Rule
	c.mustRun(&added, "rules", "add", "--test-priority", "High", "--module", "Auth", "--team", "Security QA")
	assert.NotZero(t, added.ID)
	assert.Nil(t, added.DefectSeverity)

	c.mustRun(&added, "rules", "add", "--defect-severity", "Critical", "--team", "DB Admin")

	var list []rules.Rule
	c.mustRun(&list, "rules", "list")
	require.Len(t, list, 2)

	var assignment rules.Assignment
	c.mustRun(&assignment, "assign", "test_priority=High", "module=Auth")
	assert.Equal(t, "Security QA", assignment.Team)
	assert.True(t, assignment.Matched)

	c.mustRun(&assignment, "assign", "module=Billing")
	assert.Equal(t, rules.NoMatch, assignment.Team)
	assert.False(t, assignment.Matched)

	_, err := c.run("rules", "add", "--module", "Auth")
	assert.Error(t, err, "a rule without a team is rejected")
}

func TestInvalidLogFormat(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("--log-format", "xml", "config", "list")
	assert.Error(t, err)
}
