// Package fingerprint computes the digest that keys the cache: a SHA-1 over
// the preprocessed translation unit, the active .clang-tidy configuration,
// and the normalized analyzer and compiler argument sets.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gophersatwork/ctcache/internal/config"
	"github.com/gophersatwork/ctcache/internal/invocation"
)

var (
	// ErrNoCompilerArgs means no compiler command could be recovered; the
	// invocation runs uncached.
	ErrNoCompilerArgs = errors.New("no compiler arguments")

	// ErrPreprocessFailed means the compiler wrote to stderr or exited
	// non-zero while preprocessing; a preprocessing error invalidates the
	// inputs, so the fingerprint is abandoned.
	ErrPreprocessFailed = errors.New("preprocessing failed")
)

// sourceExtensions are the extensions recognized as translation-unit paths
// when scanning the analyzer args for the source file.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".h": true, ".hpp": true,
}

// RunFunc executes a command vector and returns its stdout and stderr.
type RunFunc func(args []string) (stdout, stderr []byte, err error)

// Builder computes digests. It is safe to reuse across invocations within
// one process; each Digest call creates its own Hasher.
type Builder struct {
	fs      afero.Fs
	log     *zap.SugaredLogger
	strip   []string
	exclude *regexp.Regexp
	dump    string // dump file path, empty when disabled
	run     RunFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithFs sets the filesystem used for config reads and the audit dump.
func WithFs(fs afero.Fs) Option {
	return func(b *Builder) {
		b.fs = fs
	}
}

// WithRunFunc replaces the subprocess runner. Useful for tests.
func WithRunFunc(run RunFunc) Option {
	return func(b *Builder) {
		b.run = run
	}
}

// New creates a Builder from the configuration.
func New(cfg *config.Config, log *zap.SugaredLogger, options ...Option) (*Builder, error) {
	b := &Builder{
		fs:    afero.NewOsFs(),
		log:   log,
		strip: cfg.Strip,
		run:   runCommand,
	}
	if cfg.ExcludeHashRegex != "" {
		re, err := regexp.Compile(cfg.ExcludeHashRegex)
		if err != nil {
			return nil, fmt.Errorf("compiling CTCACHE_EXCLUDE_HASH_REGEX: %w", err)
		}
		b.exclude = re
	}
	if cfg.Dump {
		b.dump = filepath.Join(cfg.DumpDir, DumpFileName)
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Digest computes the fingerprint of one analyzer invocation. The feed
// order is fixed: preprocessed bytes, then the active .clang-tidy files in
// lexicographic path order, then the analyzer arg set, then the compiler
// arg set.
func (b *Builder) Digest(analyzerArgs, compilerArgs, tidyDirs []string) (string, error) {
	if len(compilerArgs) == 0 {
		return "", ErrNoCompilerArgs
	}

	preprocessed, err := b.preprocess(compilerArgs)
	if err != nil {
		return "", err
	}

	h, err := NewHasher(b.fs, b.dump)
	if err != nil {
		return "", err
	}
	defer h.Close()

	h.Update(preprocessed)

	for _, path := range b.activeConfigs(analyzerArgs, tidyDirs) {
		if err := b.hashConfigFile(h, path); err != nil {
			return "", err
		}
	}

	b.hashArgSet(h, dropExportFixes(analyzerArgs[1:]))
	b.hashArgSet(h, compilerArgs[1:])

	return h.Hexdigest(), nil
}

// preprocess drives the compiler in preprocess-only mode and returns the
// canonical preprocessed text.
func (b *Builder) preprocess(compilerArgs []string) ([]byte, error) {
	args := invocation.RewriteForPreprocess(compilerArgs)
	stdout, stderr, err := b.run(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreprocessFailed, err)
	}
	if len(stderr) > 0 {
		return nil, fmt.Errorf("%w: compiler wrote to stderr", ErrPreprocessFailed)
	}
	return stdout, nil
}

// hashArgSet feeds a normalized, deduplicated, sorted argument set.
func (b *Builder) hashArgSet(h *Hasher, args []string) {
	for _, tok := range normalizeArgSet(args, b.strip, b.exclude) {
		h.Update([]byte(tok))
	}
}

// hashConfigFile feeds one .clang-tidy file: comment lines are skipped, the
// rest are whitespace-split and each token normalized. Tokens are fed with
// no separator; the sequence is fixed by iteration order.
func (b *Builder) hashConfigFile(h *Hasher, path string) error {
	raw, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "# ") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if tok := NormalizeToken(field, b.strip); tok != "" {
				h.Update([]byte(tok))
			}
		}
	}
	return nil
}

// activeConfigs returns the .clang-tidy files contributing to the digest:
// <dir>/.clang-tidy for every configured directory that is an ancestor of
// the source file, in lexicographic path order.
func (b *Builder) activeConfigs(analyzerArgs, tidyDirs []string) []string {
	source := b.findSourceFile(analyzerArgs)
	if source == "" {
		return nil
	}
	absSource, err := filepath.Abs(source)
	if err != nil {
		return nil
	}

	var paths []string
	for _, dir := range tidyDirs {
		if !isAncestor(dir, absSource) {
			continue
		}
		path := filepath.Join(dir, ".clang-tidy")
		if ok, _ := afero.Exists(b.fs, path); ok {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// findSourceFile returns the first analyzer arg past argv[0] that exists
// and carries a recognized source extension.
func (b *Builder) findSourceFile(analyzerArgs []string) string {
	if len(analyzerArgs) < 2 {
		return ""
	}
	for _, arg := range analyzerArgs[1:] {
		if !sourceExtensions[strings.ToLower(filepath.Ext(arg))] {
			continue
		}
		if ok, _ := afero.Exists(b.fs, arg); ok {
			return arg
		}
	}
	return ""
}

// isAncestor reports whether dir is an ancestor (inclusive) of path, by
// common-path prefix.
func isAncestor(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absDir = filepath.Clean(absDir)
	path = filepath.Clean(path)
	if absDir == path {
		return true
	}
	return strings.HasPrefix(path, absDir+string(os.PathSeparator))
}

// runCommand executes the vector and captures both streams.
func runCommand(args []string) ([]byte, []byte, error) {
	cmd := exec.Command(args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
