package durable

import "github.com/uptrace/bun"

// ConfigurationRow is one version of a configuration value.
type ConfigurationRow struct {
	bun.BaseModel `bun:"table:configurations,alias:c"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Key     string `bun:"config_key,notnull"`
	Value   string `bun:"config_value,notnull"`
	Version int64  `bun:"version,notnull"`
}

// CredentialRow is one version of an encrypted credential.
type CredentialRow struct {
	bun.BaseModel `bun:"table:credentials,alias:cr"`

	ID             int64  `bun:"id,pk,autoincrement"`
	Service        string `bun:"service_name,notnull"`
	Key            string `bun:"config_key,notnull"`
	EncryptedValue []byte `bun:"encrypted_value,notnull"`
	Version        int64  `bun:"version,notnull"`
}

// RuleRow is a single assignment rule. Nil criteria never match.
type RuleRow struct {
	bun.BaseModel `bun:"table:rule_definitions,alias:r"`

	ID             int64   `bun:"id,pk,autoincrement"`
	TestPriority   *string `bun:"test_priority"`
	DefectSeverity *string `bun:"defect_severity"`
	Module         *string `bun:"module"`
	AssignedTeam   string  `bun:"assigned_team,notnull"`
}
