package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FeatureFlagsKey is the top-level snapshot key holding feature flags.
const FeatureFlagsKey = "feature_flags"

// ErrNoConfigFile is the LoadError of a snapshot for which no file existed.
var ErrNoConfigFile = errors.New("configstore: no configuration file found")

type decodeFunc func(data []byte, out *map[string]any) error

// snapshotFormats lists the candidate file extensions in lookup order.
var snapshotFormats = []struct {
	ext    string
	decode decodeFunc
}{
	{ext: ".json", decode: func(data []byte, out *map[string]any) error { return json.Unmarshal(data, out) }},
	{ext: ".yaml", decode: func(data []byte, out *map[string]any) error { return yaml.Unmarshal(data, out) }},
	{ext: ".yml", decode: func(data []byte, out *map[string]any) error { return yaml.Unmarshal(data, out) }},
	{ext: ".toml", decode: func(data []byte, out *map[string]any) error { return toml.Unmarshal(data, out) }},
}

// SnapshotOption configures LoadSnapshot.
type SnapshotOption func(*snapshotOptions)

type snapshotOptions struct {
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// WithSnapshotLogger sets the logger used to report a degraded load.
func WithSnapshotLogger(logger *slog.Logger) SnapshotOption {
	return func(o *snapshotOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLookupEnv replaces os.LookupEnv as the source of overrides.
func WithLookupEnv(lookup func(string) (string, bool)) SnapshotOption {
	return func(o *snapshotOptions) {
		if lookup != nil {
			o.lookupEnv = lookup
		}
	}
}

// Snapshot is the process configuration loaded once at startup.
// It is safe for concurrent use. Feature flag changes live only in memory.
type Snapshot struct {
	mu      sync.RWMutex
	values  map[string]any
	source  string
	loadErr error
}

// LoadSnapshot reads {dir}/{environment} trying .json, .yaml, .yml and .toml
// in that order. A missing or unreadable file is not fatal: the snapshot is
// empty and Degraded reports true.
//
// After loading, every top-level key whose uppercased name is set in the
// environment is replaced by the variable's string value. Nested keys are
// never overridden.
func LoadSnapshot(environment, dir string, opts ...SnapshotOption) *Snapshot {
	o := snapshotOptions{logger: slog.Default(), lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Snapshot{values: map[string]any{}}
	s.values, s.source, s.loadErr = readSnapshotFile(environment, dir)
	if s.loadErr != nil {
		o.logger.Warn("configuration snapshot unavailable, running degraded",
			slog.String("environment", environment),
			slog.String("directory", dir),
			slog.Any("error", s.loadErr),
		)
		s.values = map[string]any{}
	}

	for key := range s.values {
		if v, ok := o.lookupEnv(strings.ToUpper(key)); ok {
			s.values[key] = v
		}
	}

	return s
}

// NewSnapshot wraps values in a Snapshot without touching the filesystem.
func NewSnapshot(values map[string]any) *Snapshot {
	if values == nil {
		values = map[string]any{}
	}
	return &Snapshot{values: deepCopyMap(values)}
}

func readSnapshotFile(environment, dir string) (map[string]any, string, error) {
	for _, format := range snapshotFormats {
		path := filepath.Join(dir, environment+format.ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("configstore: read %s: %w", path, err)
		}

		values := map[string]any{}
		if err := format.decode(data, &values); err != nil {
			return nil, path, fmt.Errorf("configstore: parse %s: %w", path, err)
		}
		if values == nil {
			values = map[string]any{}
		}
		return normalizeMap(values), path, nil
	}
	return nil, "", ErrNoConfigFile
}

// Degraded reports whether the snapshot could not be loaded from a file.
func (s *Snapshot) Degraded() bool {
	return s.loadErr != nil
}

// LoadError returns the reason the snapshot is degraded, or nil.
func (s *Snapshot) LoadError() error {
	return s.loadErr
}

// Source returns the path of the file the snapshot was read from.
func (s *Snapshot) Source() string {
	return s.source
}

// Get resolves a dotted key such as "database.pool.size" by descending
// through nested maps. ok is false when any segment is missing.
func (s *Snapshot) Get(dottedKey string) (any, bool) {
	if dottedKey == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var current any = s.values
	for _, segment := range strings.Split(dottedKey, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return deepCopyValue(current), true
}

// ListAll returns a copy of the whole snapshot.
func (s *Snapshot) ListAll() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopyMap(s.values)
}

// EnableFeature turns flag on.
func (s *Snapshot) EnableFeature(flag string) {
	s.setFeature(flag, true)
}

// DisableFeature turns flag off.
func (s *Snapshot) DisableFeature(flag string) {
	s.setFeature(flag, false)
}

// IsFeatureEnabled reports whether flag is on. Unknown flags are off.
func (s *Snapshot) IsFeatureEnabled(flag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags, ok := s.values[FeatureFlagsKey].(map[string]any)
	if !ok {
		return false
	}
	switch v := flags[flag].(type) {
	case bool:
		return v
	case string:
		enabled, _ := strconv.ParseBool(v)
		return enabled
	default:
		return false
	}
}

func (s *Snapshot) setFeature(flag string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags, ok := s.values[FeatureFlagsKey].(map[string]any)
	if !ok {
		flags = map[string]any{}
		s.values[FeatureFlagsKey] = flags
	}
	flags[flag] = enabled
}

// normalizeMap converts nested map[any]any values produced by some decoders
// into map[string]any so dotted lookups can descend into them.
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeMap(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeValue(val)
		}
		return t
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}
