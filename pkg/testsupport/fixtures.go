package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// ConfigDir creates a temporary directory populated with the given files,
// keyed by file name. It is removed when the test ends.
func ConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		WriteFile(t, dir, name, []byte(content))
	}
	return dir
}

// CopyFixture copies a testdata fixture into dir under the same base name and
// returns the destination path.
func CopyFixture(t *testing.T, fixture, dir string) string {
	t.Helper()

	return WriteFile(t, dir, filepath.Base(fixture), LoadFixture(t, FixturePath(fixture)))
}

// WriteFile writes content to dir/name and returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
