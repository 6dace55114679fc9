// Package configstore serves application configuration from two sources.
//
// The process Snapshot is read once at startup from {dir}/{environment}.json
// (falling back to .yaml, .yml and .toml) and patched by environment
// variables named after its uppercased top-level keys. Feature flags toggle
// entries of its feature_flags map in memory only.
//
// Versioned values live in the durable store. Every SetVersioned appends a new
// version and then refreshes the "config:{key}" cache entry; GetVersioned
// reads through that cache.
package configstore
