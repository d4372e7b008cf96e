package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ThreeSixtyGiving/Dashboard/internal/config"
)

// backendTypes lists the supported stores in order of preference for a
// single-process deployment.
var backendTypes = []BackendType{MemoryBackend, SQLiteBackend, RedisBackend}

// ParseBackendType accepts a backend name in any case.
func ParseBackendType(s string) (BackendType, error) {
	bt := BackendType(strings.ToLower(strings.TrimSpace(s)))
	if !bt.IsValid() {
		return "", fmt.Errorf("unknown cache backend %q (want one of %s)",
			s, strings.Join(GetBackendTypeStrings(), ", "))
	}
	return bt, nil
}

// FromAppConfig picks the cache settings out of the application config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	bt, err := ParseBackendType(appConfig.CacheBackend)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Type:            bt,
		DefaultTTL:      appConfig.CacheTTL,
		CleanupInterval: appConfig.CacheCleanupInterval,
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		RedisURL:        appConfig.RedisURL,
	}, nil
}

// Validate checks that the settings the chosen store needs are present.
func (c Config) Validate() error {
	if c.DefaultTTL < 0 {
		return fmt.Errorf("negative cache TTL %s", c.DefaultTTL)
	}
	switch c.Type {
	case MemoryBackend:
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("sqlite backend needs SQLITE_DB_PATH")
		}
	case RedisBackend:
		if c.RedisURL == "" {
			return errors.New("redis backend needs REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	return nil
}

// GetBackendTypeStrings returns the supported backend names.
func GetBackendTypeStrings() []string {
	strs := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		strs[i] = t.String()
	}
	return strs
}
