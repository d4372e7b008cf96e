package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/config"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		CacheBackend:         "sqlite",
		CacheTTL:             time.Hour,
		CacheCleanupInterval: time.Minute,
		SQLiteDBPath:         "./data/cache.db",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, "./data/cache.db", cfg.SQLiteDBPath)

	cfg, err = FromAppConfig(&config.Config{CacheBackend: " Redis ", RedisURL: "redis://localhost:6379/0"})
	require.NoError(t, err)
	assert.Equal(t, RedisBackend, cfg.Type)

	_, err = FromAppConfig(&config.Config{CacheBackend: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory, sqlite, redis")

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: RedisBackend}.Validate())
	assert.Error(t, Config{Type: "bogus"}.Validate())
	assert.Error(t, Config{Type: MemoryBackend, DefaultTTL: -time.Second}.Validate())
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"memory", "sqlite", "redis"}, GetBackendTypeStrings())
	assert.False(t, MemoryBackend.Shared())
	assert.True(t, SQLiteBackend.Shared())
	assert.True(t, RedisBackend.Shared())
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Discard())

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, DefaultTTL: time.Hour})
		require.NoError(t, err)
		defer res.Close()
		assert.IsType(t, &cache.MemoryStore{}, res.Store)
		assert.NotNil(t, res.Cleaner)
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{
			Type:         SQLiteBackend,
			SQLiteDBPath: filepath.Join(t.TempDir(), "cache.db"),
		})
		require.NoError(t, err)
		defer res.Close()

		key := cache.Key("GET", "https://example.org/status.json")
		require.NoError(t, res.Store.Put(ctx, key, cache.Entry{StatusCode: 200, Body: []byte("[]")}, time.Minute))
		_, ok, err := res.Store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: "postgres"})
		assert.Error(t, err)
	})
}
