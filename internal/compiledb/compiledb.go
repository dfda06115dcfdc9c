// Package compiledb recovers compiler commands from compile_commands.json.
package compiledb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Entry is one record of a compilation database. Generators emit either a
// single shell-quoted "command" string or a pre-split "arguments" list.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
}

// Resolver loads compilation databases and answers "which compiler command
// builds this source file". Databases are loaded once per directory and
// memoized for the lifetime of the process.
type Resolver struct {
	fs  afero.Fs
	log *zap.SugaredLogger
	dbs map[string][]Entry
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFs sets the filesystem used to read databases. Useful for tests.
func WithFs(fs afero.Fs) Option {
	return func(r *Resolver) {
		r.fs = fs
	}
}

// NewResolver creates a Resolver.
func NewResolver(log *zap.SugaredLogger, options ...Option) *Resolver {
	r := &Resolver{
		fs:  afero.NewOsFs(),
		log: log,
		dbs: make(map[string][]Entry),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// CommandFor returns the shell-split compiler command for source, looked up
// in <dbDir>/compile_commands.json. It returns nil when no entry matches;
// the caller treats that as "cannot fingerprint" and runs uncached.
func (r *Resolver) CommandFor(dbDir, source string) []string {
	for _, entry := range r.load(dbDir) {
		if !r.sameFile(entry.File, source) {
			continue
		}
		if entry.Command != "" {
			args, err := shlex.Split(entry.Command)
			if err != nil {
				r.log.Warnf("splitting command for %s: %v", entry.File, err)
				continue
			}
			return args
		}
		if len(entry.Arguments) > 0 {
			args, err := shlex.Split(entry.Arguments[0])
			if err != nil {
				r.log.Warnf("splitting arguments for %s: %v", entry.File, err)
				continue
			}
			return args
		}
	}
	return nil
}

// load reads and memoizes a database. A missing or malformed database is
// logged and treated as empty.
func (r *Resolver) load(dbDir string) []Entry {
	if entries, ok := r.dbs[dbDir]; ok {
		return entries
	}

	path := filepath.Join(dbDir, "compile_commands.json")
	raw, err := afero.ReadFile(r.fs, path)
	if err != nil {
		r.log.Warnf("reading %s: %v", path, err)
		r.dbs[dbDir] = nil
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(sanitize(raw), &entries); err != nil {
		r.log.Warnf("parsing %s: %v", path, err)
		entries = nil
	}
	r.dbs[dbDir] = entries
	return entries
}

// sanitize works around malformed databases emitted by some upstream
// generators: escaped double quotes become single quotes, then every
// remaining backslash is doubled so Windows paths survive the JSON parser.
// A database without backslashes passes through unchanged; in one that uses
// JSON backslash escapes, those escapes are rewritten as well. Do not extend
// this: anything beyond these two rewrites belongs in the generator.
func sanitize(raw []byte) []byte {
	s := string(raw)
	s = strings.ReplaceAll(s, `\"`, `'`)
	s = strings.ReplaceAll(s, `\`, `\\`)
	return []byte(s)
}

// sameFile compares two paths by identity on disk. Entries whose file no
// longer exists are skipped without error.
func (r *Resolver) sameFile(a, b string) bool {
	// afero has no SameFile; identity comparison only makes sense on the
	// real filesystem. On other filesystems fall back to cleaned paths.
	if _, ok := r.fs.(*afero.OsFs); !ok {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	fa, err := os.Stat(a)
	if err != nil {
		return false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(fa, fb)
}
