// Package cache implements the layered cache: a filesystem-backed local
// tier plus optional HTTP, Redis, S3 and GCS tiers behind one interface,
// coordinated with fixed read orderings and best-effort write fan-out.
package cache

import (
	"context"
	"errors"
	"path/filepath"
)

// ErrMiss is returned by payload reads when a digest is not present.
var ErrMiss = errors.New("cache miss")

// Tier is one backend of the layered cache. Every tier can answer presence
// queries and record a digest; payload support is a separate capability.
type Tier interface {
	Name() string
	IsCached(ctx context.Context, digest string) (bool, error)
	Store(ctx context.Context, digest string) error
}

// PayloadTier is a Tier that can additionally store and return the captured
// analyzer output for a digest.
type PayloadTier interface {
	Tier
	GetData(ctx context.Context, digest string) ([]byte, error)
	StoreData(ctx context.Context, digest string, data []byte) error
}

// StatsQuerier is implemented by tiers that can serve aggregated statistics
// (the HTTP server tier). Fields vary by server version, so the result is a
// loose map; missing fields are rendered as N/A by the caller.
type StatsQuerier interface {
	QueryStats(ctx context.Context) (map[string]any, error)
}

// shardPath splits a digest into the two-character sharding prefix and the
// remainder, bounding per-directory entry counts.
func shardPath(digest string) (string, string) {
	return digest[:2], digest[2:]
}

// entryPath is the local relative path of a digest: <d[0:2]>/<d[2:]>.
func entryPath(digest string) string {
	prefix, rest := shardPath(digest)
	return filepath.Join(prefix, rest)
}
