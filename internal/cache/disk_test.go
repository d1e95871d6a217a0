package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: "error"})
}

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(t.TempDir(), 5*time.Minute, 100, false, testLogger())
	require.NoError(t, err)
	return s
}

func TestCacheKey(t *testing.T) {
	vars := map[string]any{"token": "0xabc", "first": 100}
	reordered := map[string]any{"first": 100, "token": "0xabc"}

	assert.Equal(t, cacheKey("{ transfers }", vars), cacheKey("{ transfers }", reordered))
	assert.Equal(t, cacheKey("{ transfers }", nil), cacheKey("  { transfers }\n", nil))
	assert.Equal(t, cacheKey("{ transfers }", nil), cacheKey("{ transfers }", map[string]any{}))
	assert.NotEqual(t, cacheKey("{ transfers }", vars), cacheKey("{ transfers }", map[string]any{"token": "0xdef"}))
	assert.NotEqual(t, cacheKey("{ transfers }", nil), cacheKey("{ swaps }", nil))
}

func TestDiskStoreSetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vars := map[string]any{"token": "0xabc"}

	_, ok := s.Get(ctx, "{ transfers }", vars, 0)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "{ transfers }", vars, []byte(`{"transfers":[]}`), 0))

	payload, ok := s.Get(ctx, "{ transfers }", vars, 0)
	require.True(t, ok)
	assert.Equal(t, `{"transfers":[]}`, string(payload))

	st := s.Stats(ctx)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, uint64(1), st.Writes)
	assert.Equal(t, 1, st.EntryCount)
}

func TestDiskStoreTTLExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "{ q }", nil, []byte("payload"), 0))

	now := time.Now()
	s.nowFn = func() time.Time { return now.Add(10 * time.Minute) }

	_, ok := s.Get(ctx, "{ q }", nil, 0)
	assert.False(t, ok)

	st := s.Stats(ctx)
	assert.Equal(t, uint64(1), st.Expired)
	assert.Equal(t, uint64(0), st.Hits)
	// The stale file is gone, so the next read is a plain miss
	assert.Equal(t, 0, st.EntryCount)
	_, ok = s.Get(ctx, "{ q }", nil, 0)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Stats(ctx).Misses)
}

func TestDiskStorePerCallTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "{ q }", nil, []byte("payload"), 0))

	// Age the entry two minutes without touching the clock
	path := s.entryPath(cacheKey("{ q }", nil))
	aged := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, aged, aged))

	_, ok := s.Get(ctx, "{ q }", nil, time.Hour)
	assert.True(t, ok, "entry should be fresh under a long ttl")

	_, ok = s.Get(ctx, "{ q }", nil, time.Minute)
	assert.False(t, ok, "same entry should be stale under a short ttl")
	assert.Equal(t, uint64(1), s.Stats(ctx).Expired)
}

func TestDiskStoreSizeEviction(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 5*time.Minute, 1, false, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	payload := make([]byte, 400*1024)

	require.NoError(t, s.Set(ctx, "{ a }", nil, payload, 0))
	oldest := s.entryPath(cacheKey("{ a }", nil))
	aged := time.Now().Add(-3 * time.Minute)
	require.NoError(t, os.Chtimes(oldest, aged, aged))

	require.NoError(t, s.Set(ctx, "{ b }", nil, payload, 0))
	middle := s.entryPath(cacheKey("{ b }", nil))
	aged = time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(middle, aged, aged))

	// Third write pushes the directory past 1 MB; the oldest entry goes
	require.NoError(t, s.Set(ctx, "{ c }", nil, payload, 0))

	_, ok := s.Get(ctx, "{ a }", nil, 0)
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = s.Get(ctx, "{ b }", nil, 0)
	assert.True(t, ok)
	_, ok = s.Get(ctx, "{ c }", nil, 0)
	assert.True(t, ok)

	assert.LessOrEqual(t, s.Stats(ctx).SizeBytes, int64(1024*1024))
}

func TestDiskStoreCompression(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 5*time.Minute, 100, true, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte(`{"data":{"transfers":[{"id":"0xabc-1"}]}}`)
	require.NoError(t, s.Set(ctx, "{ q }", nil, payload, 0))

	got, ok := s.Get(ctx, "{ q }", nil, 0)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	path := s.entryPath(cacheKey("{ q }", nil))
	assert.Equal(t, ".gz", filepath.Ext(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, payload, raw)
}

func TestDiskStoreCorruptEntryFailsOpen(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 5*time.Minute, 100, true, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	path := s.entryPath(cacheKey("{ q }", nil))
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	_, ok := s.Get(ctx, "{ q }", nil, 0)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Stats(ctx).Errors)
}

func TestDiskStoreDeleteAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "{ a }", nil, []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "{ b }", nil, []byte("b"), 0))

	assert.True(t, s.Delete(ctx, "{ a }", nil))
	assert.False(t, s.Delete(ctx, "{ a }", nil))

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Stats(ctx).EntryCount)
}

func TestDiskStoreCleanupExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "{ old }", nil, []byte("old"), 0))
	require.NoError(t, s.Set(ctx, "{ new }", nil, []byte("new"), 0))

	path := s.entryPath(cacheKey("{ old }", nil))
	aged := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(path, aged, aged))

	assert.Equal(t, 1, s.CleanupExpired(ctx, 0))
	assert.Equal(t, 1, s.Stats(ctx).EntryCount)
}

func TestDiskStoreCleanupOnInit(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewDiskStore(dir, 5*time.Minute, 100, false, testLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "{ q }", nil, []byte("payload"), 0))

	path := s1.entryPath(cacheKey("{ q }", nil))
	aged := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(path, aged, aged))

	s2, err := NewDiskStore(dir, 5*time.Minute, 100, false, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, s2.Stats(ctx).EntryCount)
}

func TestDiskStoreStatsReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "{ q }", nil, []byte("payload"), 0))
	s.Get(ctx, "{ q }", nil, 0)
	s.Get(ctx, "{ missing }", nil, 0)

	st := s.Stats(ctx)
	assert.InDelta(t, 50.0, st.HitRate, 0.01)

	s.ResetStats()
	st = s.Stats(ctx)
	assert.Zero(t, st.Hits)
	assert.Zero(t, st.Misses)
	assert.Zero(t, st.Writes)
	assert.Equal(t, 1, st.EntryCount, "reset clears counters, not entries")
}
