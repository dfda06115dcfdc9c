package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gophersatwork/ctcache/internal/config"
)

// S3Tier stores presence entries at <folder>/<digest[0:2]>/<digest[2:]>
// within a bucket, with the digest string as body. It is presence-only in
// the read paths. In anonymous mode requests are unsigned and writes are
// silently skipped.
type S3Tier struct {
	client    *s3.Client
	bucket    string
	folder    string
	anonymous bool
}

// NewS3 creates the S3 tier.
func NewS3(ctx context.Context, cfg *config.Config) (*S3Tier, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Anonymous {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Tier{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.S3Bucket,
		folder:    cfg.S3Folder,
		anonymous: cfg.S3Anonymous,
	}, nil
}

// Name implements Tier.
func (t *S3Tier) Name() string {
	return "s3"
}

func (t *S3Tier) key(digest string) string {
	prefix, rest := shardPath(digest)
	return path.Join(t.folder, prefix, rest)
}

// IsCached implements Tier. Only "no such key" reads as a miss; any other
// error surfaces to the caller.
func (t *S3Tier) IsCached(ctx context.Context, digest string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(digest)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Store implements Tier.
func (t *S3Tier) Store(ctx context.Context, digest string) error {
	if t.anonymous {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(digest)),
		Body:   strings.NewReader(digest),
	})
	return err
}

func isNoSuchKey(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
