package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gophersatwork/ctcache/internal/config"
)

// Remotes holds the optional remote tiers. A nil field means the tier is
// not configured. Payload capability is discovered by type assertion.
type Remotes struct {
	HTTP  Tier
	S3    Tier
	GCS   Tier
	Redis Tier
}

// BuildRemotes constructs each remote tier whose environment predicate is
// satisfied. A tier that fails to construct is logged and left out; the
// cache degrades, the build does not.
func BuildRemotes(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) Remotes {
	var r Remotes
	if cfg.Host != "" {
		r.HTTP = NewHTTP(cfg.Proto, cfg.Host, cfg.Port)
	}
	if cfg.S3Bucket != "" {
		if tier, err := NewS3(ctx, cfg); err != nil {
			log.Errorf("s3 tier unavailable: %v", err)
		} else {
			r.S3 = tier
		}
	}
	if cfg.GCSBucket != "" {
		if tier, err := NewGCS(ctx, cfg); err != nil {
			log.Errorf("gcs tier unavailable: %v", err)
		} else {
			r.GCS = tier
		}
	}
	if cfg.RedisHost != "" {
		r.Redis = NewRedis(cfg)
	}
	return r
}

// Multi coordinates the local tier and the configured remotes.
//
// Presence reads probe local, HTTP, S3, GCS, Redis and stop at the first
// hit. Payload reads probe local, GCS, Redis: the presence-only tiers are
// cheaper and probed first when presence is all we need, and skipped
// entirely when we need bytes. Writes fan out to every configured tier,
// best-effort.
type Multi struct {
	local    *Local
	presence []Tier        // remote presence read order
	payload  []PayloadTier // remote payload read order
	writers  []Tier        // every configured remote
	stats    StatsQuerier  // HTTP tier when configured
	log      *zap.SugaredLogger
}

// NewMulti assembles the coordinator.
func NewMulti(local *Local, remotes Remotes, log *zap.SugaredLogger) *Multi {
	m := &Multi{local: local, log: log}

	for _, tier := range []Tier{remotes.HTTP, remotes.S3, remotes.GCS, remotes.Redis} {
		if tier == nil {
			continue
		}
		m.presence = append(m.presence, tier)
		m.writers = append(m.writers, tier)
	}
	for _, tier := range []Tier{remotes.GCS, remotes.Redis} {
		if pt, ok := tier.(PayloadTier); ok {
			m.payload = append(m.payload, pt)
		}
	}
	if remotes.HTTP != nil {
		if sq, ok := remotes.HTTP.(StatsQuerier); ok {
			m.stats = sq
		}
	}
	return m
}

// Local returns the local tier, which also serves the management modes.
func (m *Multi) Local() *Local {
	return m.local
}

// IsCached probes the presence tiers in order. Local errors (the stats lock
// timing out) propagate; remote errors are logged and read as misses.
func (m *Multi) IsCached(ctx context.Context, digest string) (bool, error) {
	hit, err := m.local.IsCached(ctx, digest)
	if err != nil {
		return false, err
	}
	if hit {
		return true, nil
	}
	for _, tier := range m.presence {
		hit, err := tier.IsCached(ctx, digest)
		if err != nil {
			m.log.Errorf("%s: is_cached: %v", tier.Name(), err)
			continue
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

// GetData probes the payload tiers in order and returns the first payload
// found, or ErrMiss.
func (m *Multi) GetData(ctx context.Context, digest string) ([]byte, error) {
	data, err := m.local.GetData(ctx, digest)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, err
	}
	for _, tier := range m.payload {
		data, err := tier.GetData(ctx, digest)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrMiss) {
			m.log.Errorf("%s: get_cache_data: %v", tier.Name(), err)
		}
	}
	return nil, ErrMiss
}

// Store records a presence entry in every configured tier.
func (m *Multi) Store(ctx context.Context, digest string) {
	if err := m.local.Store(ctx, digest); err != nil {
		m.log.Errorf("local: store: %v", err)
	}
	for _, tier := range m.writers {
		if err := tier.Store(ctx, digest); err != nil {
			m.log.Errorf("%s: store: %v", tier.Name(), err)
		}
	}
}

// StoreData records a payload entry in every configured tier. Tiers without
// payload support record presence instead.
func (m *Multi) StoreData(ctx context.Context, digest string, data []byte) {
	if err := m.local.StoreData(ctx, digest, data); err != nil {
		m.log.Errorf("local: store: %v", err)
	}
	for _, tier := range m.writers {
		var err error
		if pt, ok := tier.(PayloadTier); ok {
			err = pt.StoreData(ctx, digest, data)
		} else {
			err = tier.Store(ctx, digest)
		}
		if err != nil {
			m.log.Errorf("%s: store: %v", tier.Name(), err)
		}
	}
}

// QueryStats returns the statistics object: the HTTP server's enriched view
// when that tier is configured, the local counters otherwise.
func (m *Multi) QueryStats(ctx context.Context) (map[string]any, error) {
	if m.stats != nil {
		stats, err := m.stats.QueryStats(ctx)
		if err == nil {
			return stats, nil
		}
		m.log.Errorf("http: stats: %v", err)
	}
	return m.local.QueryStats(ctx)
}
