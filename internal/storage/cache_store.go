package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"

	_ "modernc.org/sqlite"
)

// CacheStore persists fetched responses in SQLite so that they survive a
// restart and can be shared with the refresh worker on the same host.
type CacheStore struct {
	db      *sql.DB
	now     func() time.Time
	version uint
}

// NewCacheStore opens the database at dbPath and applies migrations.
func NewCacheStore(dbPath string) (*CacheStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &CacheStore{db: db, now: time.Now, version: version}, nil
}

// SchemaVersion returns the migration version the database is at.
func (s *CacheStore) SchemaVersion() uint {
	return s.version
}

func (s *CacheStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const getEntrySQL = `
SELECT status_code, content_type, body, stored_at
FROM response_cache
WHERE cache_key = ? AND expires_at > ?`

// Get implements cache.Store
func (s *CacheStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		e        cache.Entry
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, getEntrySQL, key, s.now().UnixMilli()).
		Scan(&e.StatusCode, &e.ContentType, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("get cache entry %q: %w", key, err)
	}
	e.StoredAt = time.UnixMilli(storedAt)
	return e, true, nil
}

const putEntrySQL = `
INSERT INTO response_cache (cache_key, status_code, content_type, body, stored_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (cache_key) DO UPDATE SET
    status_code = excluded.status_code,
    content_type = excluded.content_type,
    body = excluded.body,
    stored_at = excluded.stored_at,
    expires_at = excluded.expires_at`

// Put implements cache.Store
func (s *CacheStore) Put(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = s.now()
	}
	expiresAt := s.now().Add(ttl)
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	_, err := s.db.ExecContext(ctx, putEntrySQL,
		key, entry.StatusCode, entry.ContentType, body,
		storedAt.UnixMilli(), expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry %q: %w", key, err)
	}
	return nil
}

// CleanExpired implements cache.Cleaner
func (s *CacheStore) CleanExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Ping implements cache.Pinger
func (s *CacheStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
