package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gophersatwork/ctcache/internal/config"
)

// RedisTier stores entries under <namespace><digest>. A presence-only entry
// is the empty string; a payload entry holds the captured bytes. Entries
// never expire from our side; eviction is the server's policy.
type RedisTier struct {
	rdb       *redis.Client
	namespace string
}

// NewRedis creates the Redis tier.
func NewRedis(cfg *config.Config) *RedisTier {
	return &RedisTier{
		rdb: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		}),
		namespace: cfg.RedisNamespace,
	}
}

// Name implements Tier.
func (t *RedisTier) Name() string {
	return "redis"
}

func (t *RedisTier) key(digest string) string {
	return t.namespace + digest
}

// IsCached implements Tier.
func (t *RedisTier) IsCached(ctx context.Context, digest string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	n, err := t.rdb.Exists(ctx, t.key(digest)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetData implements PayloadTier.
func (t *RedisTier) GetData(ctx context.Context, digest string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	data, err := t.rdb.Get(ctx, t.key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store implements Tier.
func (t *RedisTier) Store(ctx context.Context, digest string) error {
	return t.StoreData(ctx, digest, nil)
}

// StoreData implements PayloadTier.
func (t *RedisTier) StoreData(ctx context.Context, digest string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return t.rdb.Set(ctx, t.key(digest), data, 0).Err()
}
