package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gophersatwork/ctcache/internal/config"
)

// GCSTier stores entries at <folder>/<digest[0:2]>/<digest[2:]> within a
// bucket. Presence entries hold the digest string; payload entries hold the
// captured analyzer output. In anonymous-client mode writes are silently
// skipped.
type GCSTier struct {
	client    *storage.Client
	bucket    string
	folder    string
	anonymous bool
}

// NewGCS creates the GCS tier.
func NewGCS(ctx context.Context, cfg *config.Config) (*GCSTier, error) {
	var opts []option.ClientOption
	if cfg.GCSAnonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &GCSTier{
		client:    client,
		bucket:    cfg.GCSBucket,
		folder:    cfg.GCSFolder,
		anonymous: cfg.GCSAnonymous,
	}, nil
}

// Name implements Tier.
func (t *GCSTier) Name() string {
	return "gcs"
}

func (t *GCSTier) object(digest string) *storage.ObjectHandle {
	prefix, rest := shardPath(digest)
	return t.client.Bucket(t.bucket).Object(path.Join(t.folder, prefix, rest))
}

// IsCached implements Tier.
func (t *GCSTier) IsCached(ctx context.Context, digest string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := t.object(digest).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetData implements PayloadTier.
func (t *GCSTier) GetData(ctx context.Context, digest string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	r, err := t.object(digest).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Store implements Tier.
func (t *GCSTier) Store(ctx context.Context, digest string) error {
	return t.write(ctx, digest, []byte(digest))
}

// StoreData implements PayloadTier.
func (t *GCSTier) StoreData(ctx context.Context, digest string, data []byte) error {
	return t.write(ctx, digest, data)
}

func (t *GCSTier) write(ctx context.Context, digest string, body []byte) error {
	if t.anonymous {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	w := t.object(digest).NewWriter(ctx)
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
