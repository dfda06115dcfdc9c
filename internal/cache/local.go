package cache

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// entryNamePattern matches the file name of a cache entry: a 40-hex digest
// minus its 2-character shard prefix.
var entryNamePattern = regexp.MustCompile(`^[0-9a-f]{38}$`)

// NowFunc returns the current time. Injectable for tests.
type NowFunc func() time.Time

// Local is the filesystem tier. An entry is a file at
// <dir>/<digest[0:2]>/<digest[2:]>, empty for presence-only entries or
// holding the captured analyzer stdout. Entry mtime is refreshed on every
// hit so external eviction can prune by age.
type Local struct {
	dir   string
	fs    afero.Fs
	now   NowFunc
	stats *statsCounter
	log   *zap.SugaredLogger
}

// LocalOption configures a Local tier.
type LocalOption func(*Local)

// WithFs sets the filesystem implementation. Tests use afero.NewMemMapFs().
func WithFs(fs afero.Fs) LocalOption {
	return func(l *Local) {
		l.fs = fs
	}
}

// WithNowFunc sets the time source used for mtime refreshes.
func WithNowFunc(now NowFunc) LocalOption {
	return func(l *Local) {
		l.now = now
	}
}

// NewLocal creates the local tier rooted at dir. The directory is created
// lazily on first write, so read-only management modes never create it.
func NewLocal(dir string, log *zap.SugaredLogger, options ...LocalOption) *Local {
	l := &Local{
		dir: dir,
		fs:  afero.NewOsFs(),
		now: time.Now,
		log: log,
	}
	for _, option := range options {
		option(l)
	}
	l.stats = &statsCounter{fs: l.fs, dir: dir}
	return l
}

// Dir returns the cache root.
func (l *Local) Dir() string {
	return l.dir
}

// Name implements Tier.
func (l *Local) Name() string {
	return "local"
}

// IsCached reports presence of digest and records the lookup in the stats
// counters. On a hit the entry mtime is refreshed.
func (l *Local) IsCached(_ context.Context, digest string) (bool, error) {
	path := l.path(digest)
	if _, err := l.fs.Stat(path); err != nil {
		// Any stat failure reads as a miss.
		return false, l.stats.update(false)
	}
	l.touch(path)
	return true, l.stats.update(true)
}

// GetData returns the stored payload for digest, or ErrMiss. The lookup is
// counted and the entry mtime refreshed exactly as for IsCached.
func (l *Local) GetData(_ context.Context, digest string) ([]byte, error) {
	path := l.path(digest)
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if serr := l.stats.update(false); serr != nil {
			return nil, serr
		}
		return nil, ErrMiss
	}
	l.touch(path)
	return data, l.stats.update(true)
}

// Store records presence of digest with an empty entry file.
func (l *Local) Store(ctx context.Context, digest string) error {
	return l.StoreData(ctx, digest, nil)
}

// StoreData records digest with the given payload. Entries are immutable
// content for a given digest, so racing writers converge.
func (l *Local) StoreData(_ context.Context, digest string, data []byte) error {
	path := l.path(digest)
	if err := l.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(l.fs, path, data, 0o644)
}

// Counts returns the persisted hit/miss counters.
func (l *Local) Counts() (hits, misses int, err error) {
	return l.stats.counts()
}

// ZeroStats deletes the stats file.
func (l *Local) ZeroStats() error {
	return l.stats.zero()
}

// Clean removes the whole cache directory. A missing directory is fine.
func (l *Local) Clean() error {
	err := l.fs.RemoveAll(l.dir)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// CachedCount walks the cache directory and counts entry files.
func (l *Local) CachedCount() int {
	count := 0
	afero.Walk(l.fs, l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && entryNamePattern.MatchString(info.Name()) {
			count++
		}
		return nil
	})
	return count
}

// QueryStats assembles the local statistics object: raw counters, computed
// rates and the entry count from the directory walk.
func (l *Local) QueryStats(_ context.Context) (map[string]any, error) {
	hits, misses, err := l.stats.counts()
	if err != nil {
		return nil, err
	}
	hitRate, missRate := 0.0, 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
		missRate = float64(misses) / float64(total)
	}
	return map[string]any{
		"hit_count":    hits,
		"miss_count":   misses,
		"hit_rate":     hitRate,
		"miss_rate":    missRate,
		"cached_count": l.CachedCount(),
	}, nil
}

func (l *Local) path(digest string) string {
	return filepath.Join(l.dir, entryPath(digest))
}

// touch refreshes the entry mtime; failures are harmless and logged only.
func (l *Local) touch(path string) {
	now := l.now()
	if err := l.fs.Chtimes(path, now, now); err != nil {
		l.log.Debugf("touching %s: %v", path, err)
	}
}
