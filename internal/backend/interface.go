package backend

import (
	"context"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the cache store and optional cleanup function
type BackendResult struct {
	Store   cache.Store
	Cleaner cache.Cleaner
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates cache backends based on configuration
type Factory interface {
	// CreateBackend creates a cache store based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	DefaultTTL      time.Duration
	CleanupInterval time.Duration

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisURL string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend:
		return true
	default:
		return false
	}
}

// Shared reports whether other processes see the same entries.
func (bt BackendType) Shared() bool {
	return bt == SQLiteBackend || bt == RedisBackend
}
