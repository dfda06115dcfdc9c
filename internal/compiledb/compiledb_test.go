package compiledb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeDB writes a compile_commands.json into dir.
func writeDB(t *testing.T, dir string, entries []Entry) {
	t.Helper()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compile_commands.json"), raw, 0o644))
}

// touch creates an empty file and returns its path.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func newResolver() *Resolver {
	return NewResolver(zap.NewNop().Sugar())
}

func TestCommandForMatchesByFileIdentity(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, []Entry{
		{File: filepath.Join(dir, "bar.cpp"), Command: "clang -c bar.cpp"},
		{File: source, Command: "clang -c foo.cpp -Iinclude"},
	})
	// bar.cpp does not exist on disk; its entry is skipped without error.

	got := newResolver().CommandFor(dir, source)
	assert.Equal(t, []string{"clang", "-c", "foo.cpp", "-Iinclude"}, got)
}

func TestCommandForResolvesThroughDifferentSpelling(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, []Entry{{File: source, Command: "clang -c foo.cpp"}})

	// The same file reached through a symlink still matches: identity,
	// not string equality.
	link := filepath.Join(dir, "link.cpp")
	require.NoError(t, os.Symlink(source, link))
	got := newResolver().CommandFor(dir, link)
	assert.Equal(t, []string{"clang", "-c", "foo.cpp"}, got)
}

func TestCommandForPrefersCommandOverArguments(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, []Entry{{
		File:      source,
		Command:   "clang -c foo.cpp",
		Arguments: []string{"g++ -c foo.cpp"},
	}})

	got := newResolver().CommandFor(dir, source)
	assert.Equal(t, []string{"clang", "-c", "foo.cpp"}, got)
}

func TestCommandForFallsBackToArguments(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, []Entry{{
		File:      source,
		Arguments: []string{"g++ -c foo.cpp -Wall"},
	}})

	got := newResolver().CommandFor(dir, source)
	assert.Equal(t, []string{"g++", "-c", "foo.cpp", "-Wall"}, got)
}

func TestCommandForNoMatch(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, nil)
	assert.Nil(t, newResolver().CommandFor(dir, source))
}

func TestMissingDatabaseIsEmpty(t *testing.T) {
	assert.Nil(t, newResolver().CommandFor(t.TempDir(), "foo.cpp"))
}

func TestMalformedDatabaseIsEmpty(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compile_commands.json"), []byte("not json"), 0o644))
	assert.Nil(t, newResolver().CommandFor(dir, source))
}

func TestDatabaseIsMemoized(t *testing.T) {
	dir := t.TempDir()
	source := touch(t, dir, "foo.cpp")
	writeDB(t, dir, []Entry{{File: source, Command: "clang -c foo.cpp"}})

	r := newResolver()
	require.NotNil(t, r.CommandFor(dir, source))

	// A later rewrite of the database is not observed within one process.
	writeDB(t, dir, nil)
	assert.NotNil(t, r.CommandFor(dir, source))
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"escaped quotes become single quotes", `{"command": "echo \"x\""}`, `{"command": "echo 'x'"}`},
		{"backslashes are doubled", `C:\src`, `C:\\src`},
		{"plain json unchanged", `[{"file": "a.cpp"}]`, `[{"file": "a.cpp"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(sanitize([]byte(tc.in))))
		})
	}
}
