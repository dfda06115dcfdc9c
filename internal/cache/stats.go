package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	statsFileName = "stats"
	lockFileName  = "stats.lock"
)

// statsCounter persists the local hit/miss counters in
// <cache-dir>/stats as two whitespace-separated integers. Mutations are
// serialized across wrapper processes by the advisory lock and are atomic
// at the granularity of one increment.
type statsCounter struct {
	fs  afero.Fs
	dir string
}

func (s *statsCounter) path() string {
	return filepath.Join(s.dir, statsFileName)
}

func (s *statsCounter) lock() *fileLock {
	return &fileLock{fs: s.fs, path: filepath.Join(s.dir, lockFileName)}
}

// update increments one counter under the lock.
func (s *statsCounter) update(hit bool) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	lock := s.lock()
	if err := lock.acquire(); err != nil {
		return err
	}
	defer lock.release()

	hits, misses := s.read()
	if hit {
		hits++
	} else {
		misses++
	}
	return afero.WriteFile(s.fs, s.path(), []byte(fmt.Sprintf("%d %d\n", hits, misses)), 0o644)
}

// counts returns the current counters under the lock.
func (s *statsCounter) counts() (hits, misses int, err error) {
	if ok, _ := afero.DirExists(s.fs, s.dir); !ok {
		return 0, 0, nil
	}
	lock := s.lock()
	if err := lock.acquire(); err != nil {
		return 0, 0, err
	}
	defer lock.release()
	hits, misses = s.read()
	return hits, misses, nil
}

// read parses the stats file. An absent or malformed file reads as (0, 0).
func (s *statsCounter) read() (hits, misses int) {
	raw, err := afero.ReadFile(s.fs, s.path())
	if err != nil {
		return 0, 0
	}
	fields := strings.Fields(string(raw))
	if len(fields) != 2 {
		return 0, 0
	}
	if _, err := fmt.Sscanf(fields[0]+" "+fields[1], "%d %d", &hits, &misses); err != nil {
		return 0, 0
	}
	return hits, misses
}

// zero deletes the stats file. A missing file is not an error.
func (s *statsCounter) zero() error {
	err := s.fs.Remove(s.path())
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
