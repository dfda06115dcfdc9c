package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// requestTimeout bounds every remote-tier operation. The wrapper sits on
// the critical path of a parallel build; a slow cache must degrade to a
// pass-through, not stall the build.
const requestTimeout = 3 * time.Second

// HTTPTier talks to a ctcache server over its three GET endpoints. It is a
// presence-only tier and also the preferred statistics source when
// configured.
type HTTPTier struct {
	base   string
	client *http.Client
}

// NewHTTP creates the HTTP tier for <proto>://<host>:<port>.
func NewHTTP(proto, host string, port int) *HTTPTier {
	return &HTTPTier{
		base:   fmt.Sprintf("%s://%s:%d", proto, host, port),
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Name implements Tier.
func (t *HTTPTier) Name() string {
	return "http"
}

// IsCached queries /is_cached/<digest>, which answers a JSON boolean.
func (t *HTTPTier) IsCached(ctx context.Context, digest string) (bool, error) {
	var cached bool
	if err := t.getJSON(ctx, "/is_cached/"+digest, &cached); err != nil {
		return false, err
	}
	return cached, nil
}

// Store records digest via /cache/<digest>.
func (t *HTTPTier) Store(ctx context.Context, digest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/cache/"+digest, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storing %s: server returned %s", digest, resp.Status)
	}
	return nil
}

// QueryStats fetches the server's enriched statistics object. The field set
// varies by server version, hence the loose map.
func (t *HTTPTier) QueryStats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := t.getJSON(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (t *HTTPTier) getJSON(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: server returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
