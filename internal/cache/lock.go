package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
)

const (
	lockRetryInterval = 100 * time.Millisecond
	lockTimeout       = 3 * time.Second
)

// fileLock is the advisory lock guarding the stats file: exclusive creation
// of a presence-only lock file. A process killed mid-update leaves the lock
// behind; the file is small and safe to delete by hand, which is what the
// timeout error tells the operator.
type fileLock struct {
	fs   afero.Fs
	path string
}

// acquire creates the lock file, retrying until the timeout.
func (l *fileLock) acquire() error {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out acquiring %s; if no other ctcache is running, delete the stale lock file", l.path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// release unlinks the lock file. Must run on every exit path from the
// guarded block.
func (l *fileLock) release() error {
	return l.fs.Remove(l.path)
}
