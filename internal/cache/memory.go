package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps responses in process memory. Entries are private to
// the process and lost on restart.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-memory store. go-cache runs its own janitor
// every cleanupInterval.
func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return Entry{}, false, nil
	}
	e, ok := v.(Entry)
	if !ok {
		s.cache.Delete(key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores entry for ttl, or for the store default when ttl is zero.
func (s *MemoryStore) Put(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.cache.Set(key, entry, ttl)
	return nil
}

// CleanExpired drops expired entries and reports how many went.
func (s *MemoryStore) CleanExpired(_ context.Context) (int, error) {
	before := s.cache.ItemCount()
	s.cache.DeleteExpired()
	return max(before-s.cache.ItemCount(), 0), nil
}

// Size returns the number of cached entries, expired ones included.
func (s *MemoryStore) Size() int {
	return s.cache.ItemCount()
}
