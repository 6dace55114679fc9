// Package durable is the source of truth for configuration values, encrypted
// credentials and assignment rules.
//
// Configuration and credential tables are append-only version logs: a write
// never updates a row, it inserts the next version computed by the same
// statement. A unique index on the version columns turns a lost race into a
// constraint error, which is retried.
package durable
