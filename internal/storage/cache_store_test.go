package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
)

func setupTestStore(t *testing.T) *CacheStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "cache.db")
	s, err := NewCacheStore(dbPath)
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheStoreRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	key := cache.Key("GET", "https://example.org/status.json")

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	stored := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := cache.Entry{StatusCode: 200, ContentType: "application/json", Body: []byte(`[]`), StoredAt: stored}
	require.NoError(t, s.Put(ctx, key, entry, time.Hour))

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, []byte(`[]`), got.Body)
	assert.True(t, stored.Equal(got.StoredAt))
}

func TestCacheStoreOverwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", cache.Entry{StatusCode: 200, Body: []byte("old")}, time.Hour))
	require.NoError(t, s.Put(ctx, "k", cache.Entry{StatusCode: 200, Body: []byte("new")}, time.Hour))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got.Body)
}

func TestCacheStoreExpiry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Put(ctx, "fresh", cache.Entry{StatusCode: 200, Body: []byte("a")}, 2*time.Hour))
	require.NoError(t, s.Put(ctx, "stale", cache.Entry{StatusCode: 200, Body: []byte("b")}, 30*time.Minute))

	clock = clock.Add(time.Hour)

	_, ok, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry should read as a miss")

	_, ok, err = s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := NewCacheStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", cache.Entry{StatusCode: 200, Body: []byte("kept")}, time.Hour))
	require.NoError(t, s.Close())

	// Migrations are idempotent and data survives.
	s, err = NewCacheStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint(1), s.SchemaVersion())
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("kept"), got.Body)
	require.NoError(t, s.Ping(ctx))
}
