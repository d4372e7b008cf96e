// Package cli provides common process initialization utilities shared by
// cmd/dashboard, cmd/registry-worker and cmd/registryctl.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ThreeSixtyGiving/Dashboard/internal/backend"
	"github.com/ThreeSixtyGiving/Dashboard/internal/config"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap loads .env, the configuration and the logger. It exits the
// process when the configuration is invalid.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, SetupLogger(cfg, component)
}

// InitFeed creates the cache backend selected by CACHE_BACKEND and a
// Fetcher reading REGISTRY_URL through it. The caller closes the backend.
func InitFeed(ctx context.Context, cfg *config.Config, logger *log.Logger, m *metrics.Metrics) (*feed.Fetcher, *backend.BackendResult, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create cache backend: %w", err)
	}

	client := &http.Client{Timeout: cfg.RegistryFetchTimeout}
	src, err := feed.NewSource(ctx, cfg.RegistryURL, client)
	if err != nil {
		be.Close()
		return nil, nil, fmt.Errorf("registry source: %w", err)
	}

	fetcher := feed.New(src, feed.Options{
		Store:   be.Store,
		TTL:     cfg.CacheTTL,
		Timeout: cfg.RegistryFetchTimeout,
		Logger:  logger,
		Metrics: m,
	})
	logger.Info("Registry feed configured",
		log.FieldURL, src.URL(),
		log.FieldBackend, backendCfg.Type,
		"ttl", cfg.CacheTTL)
	return fetcher, be, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
