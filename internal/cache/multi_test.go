package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTier is a presence-only tier recording the operations it sees.
type fakeTier struct {
	name    string
	present map[string]bool
	stored  []string
	probes  *[]string // shared across tiers to observe ordering
	err     error
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) IsCached(_ context.Context, digest string) (bool, error) {
	*f.probes = append(*f.probes, f.name)
	if f.err != nil {
		return false, f.err
	}
	return f.present[digest], nil
}

func (f *fakeTier) Store(_ context.Context, digest string) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, digest)
	return nil
}

// fakePayloadTier adds payload support.
type fakePayloadTier struct {
	fakeTier
	data map[string][]byte
}

func (f *fakePayloadTier) GetData(_ context.Context, digest string) ([]byte, error) {
	*f.probes = append(*f.probes, f.name+":data")
	if f.err != nil {
		return nil, f.err
	}
	if data, ok := f.data[digest]; ok {
		return data, nil
	}
	return nil, ErrMiss
}

func (f *fakePayloadTier) StoreData(_ context.Context, digest string, data []byte) error {
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[digest] = data
	return nil
}

type multiFixture struct {
	multi  *Multi
	local  *Local
	fs     afero.Fs
	http   *fakeTier
	s3     *fakeTier
	gcs    *fakePayloadTier
	redis  *fakePayloadTier
	probes []string
}

func newMultiFixture(t *testing.T) *multiFixture {
	t.Helper()
	f := &multiFixture{}
	f.fs = afero.NewMemMapFs()
	f.local = NewLocal("/cache", zap.NewNop().Sugar(), WithFs(f.fs))
	f.http = &fakeTier{name: "http", present: map[string]bool{}, probes: &f.probes}
	f.s3 = &fakeTier{name: "s3", present: map[string]bool{}, probes: &f.probes}
	f.gcs = &fakePayloadTier{fakeTier: fakeTier{name: "gcs", present: map[string]bool{}, probes: &f.probes}}
	f.redis = &fakePayloadTier{fakeTier: fakeTier{name: "redis", present: map[string]bool{}, probes: &f.probes}}
	f.multi = NewMulti(f.local, Remotes{
		HTTP:  f.http,
		S3:    f.s3,
		GCS:   f.gcs,
		Redis: f.redis,
	}, zap.NewNop().Sugar())
	return f
}

func TestPresenceReadOrder(t *testing.T) {
	f := newMultiFixture(t)
	f.redis.present[testDigest] = true

	hit, err := f.multi.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit)
	// Local missed first (not recorded in probes), then the remotes in the
	// fixed order, with redis last.
	assert.Equal(t, []string{"http", "s3", "gcs", "redis"}, f.probes)
}

func TestPresenceReadShortCircuits(t *testing.T) {
	f := newMultiFixture(t)
	f.http.present[testDigest] = true

	hit, err := f.multi.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"http"}, f.probes)
}

func TestPresenceReadLocalFirst(t *testing.T) {
	f := newMultiFixture(t)
	require.NoError(t, f.local.Store(context.Background(), testDigest))

	hit, err := f.multi.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, f.probes, "remote tiers must not be probed on a local hit")
}

func TestRemoteErrorReadsAsMiss(t *testing.T) {
	f := newMultiFixture(t)
	f.http.err = errors.New("connection refused")
	f.gcs.present[testDigest] = true

	hit, err := f.multi.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit, "a failing tier must not stop the probe chain")
}

func TestPayloadReadSkipsPresenceOnlyTiers(t *testing.T) {
	f := newMultiFixture(t)
	f.redis.data = map[string][]byte{testDigest: []byte("diagnostics")}

	data, err := f.multi.GetData(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, "diagnostics", string(data))
	// HTTP and S3 are presence-only; the payload chain is gcs then redis.
	assert.Equal(t, []string{"gcs:data", "redis:data"}, f.probes)
}

func TestPayloadReadMiss(t *testing.T) {
	f := newMultiFixture(t)
	_, err := f.multi.GetData(context.Background(), testDigest)
	require.ErrorIs(t, err, ErrMiss)
}

func TestStoreFansOutToAllTiers(t *testing.T) {
	f := newMultiFixture(t)
	f.multi.Store(context.Background(), testDigest)

	hit, err := f.local.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{testDigest}, f.http.stored)
	assert.Equal(t, []string{testDigest}, f.s3.stored)
	assert.Equal(t, []string{testDigest}, f.gcs.stored)
	assert.Equal(t, []string{testDigest}, f.redis.stored)
}

func TestStoreSurvivesTierFailure(t *testing.T) {
	f := newMultiFixture(t)
	f.http.err = errors.New("connection refused")

	f.multi.Store(context.Background(), testDigest)

	assert.Equal(t, []string{testDigest}, f.redis.stored, "later tiers still written")
}

func TestStoreDataWritesPayloadWhereSupported(t *testing.T) {
	f := newMultiFixture(t)
	payload := []byte("hello\n")

	f.multi.StoreData(context.Background(), testDigest, payload)

	data, err := f.local.GetData(context.Background(), testDigest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, payload, f.gcs.data[testDigest])
	assert.Equal(t, payload, f.redis.data[testDigest])
	// Presence-only tiers record presence instead.
	assert.Equal(t, []string{testDigest}, f.http.stored)
	assert.Equal(t, []string{testDigest}, f.s3.stored)
}

func TestUnconfiguredTiersAreSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	local := NewLocal("/cache", zap.NewNop().Sugar(), WithFs(fs))
	m := NewMulti(local, Remotes{}, zap.NewNop().Sugar())

	hit, err := m.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = m.GetData(context.Background(), testDigest)
	require.ErrorIs(t, err, ErrMiss)

	m.Store(context.Background(), testDigest)
	hit, err = m.IsCached(context.Background(), testDigest)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestQueryStatsFallsBackToLocal(t *testing.T) {
	fs := afero.NewMemMapFs()
	local := NewLocal("/cache", zap.NewNop().Sugar(), WithFs(fs))
	m := NewMulti(local, Remotes{}, zap.NewNop().Sugar())

	stats, err := m.QueryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats["hit_count"])
	assert.Equal(t, 0, stats["miss_count"])
}
