package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"os"

	"github.com/spf13/afero"
)

// DumpFileName is the audit log appended to when dumping is enabled.
const DumpFileName = "ctcache.dump"

// Hasher is a streaming SHA-1 accumulator. When a dump file is attached,
// every byte fed to the hasher is also appended there, so operators can
// diff two digest computations byte-for-byte.
type Hasher struct {
	h    hash.Hash
	dump afero.File
}

// NewHasher creates a Hasher. dumpPath may be empty to disable the audit
// log; otherwise the file is opened append-only and shared across runs.
func NewHasher(fs afero.Fs, dumpPath string) (*Hasher, error) {
	h := &Hasher{h: sha1.New()}
	if dumpPath != "" {
		f, err := fs.OpenFile(dumpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening dump file: %w", err)
		}
		h.dump = f
	}
	return h, nil
}

// Update feeds bytes into the digest and the audit log.
func (h *Hasher) Update(b []byte) {
	h.h.Write(b)
	if h.dump != nil {
		h.dump.Write(b)
	}
}

// Hexdigest returns the 40-hex-character digest of everything fed so far.
func (h *Hasher) Hexdigest() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Close flushes and closes the audit log, if any.
func (h *Hasher) Close() error {
	if h.dump == nil {
		return nil
	}
	err := h.dump.Close()
	h.dump = nil
	return err
}
