package backend

import (
	"context"
	"fmt"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case RedisBackend:
		return f.createRedisBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	store := cache.NewMemoryStore(ttl, config.CleanupInterval)

	f.logger.Info("Initialized memory cache backend", log.FieldBackend, MemoryBackend)

	return &BackendResult{
		Store:   store,
		Cleaner: store,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := storage.NewCacheStore(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite cache: %w", err)
	}

	f.logger.Info("Initialized SQLite cache backend",
		log.FieldBackend, SQLiteBackend,
		"db_path", config.SQLiteDBPath,
		"schema_version", store.SchemaVersion())

	return &BackendResult{
		Store:   store,
		Cleaner: store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := cache.NewRedisStore(ctx, config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
	}

	f.logger.Info("Initialized Redis cache backend", log.FieldBackend, RedisBackend)

	// Redis expires keys itself, so there is no Cleaner.
	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}
