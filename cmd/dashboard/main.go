package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/cli"
	apphttp "github.com/ThreeSixtyGiving/Dashboard/internal/http"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
	"github.com/ThreeSixtyGiving/Dashboard/internal/middleware/ratelimit"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	m := metrics.New(prometheus.DefaultRegisterer)

	fetcher, be, err := cli.InitFeed(context.Background(), cfg, logger, m)
	if err != nil {
		logger.Error("Failed to initialize registry feed", log.FieldError, err)
		os.Exit(1)
	}
	defer be.Close()

	cacheManager := cache.NewManager(logger)
	if be.Cleaner != nil {
		cacheManager.Register(be.Cleaner)
	}
	cacheManager.StartCleanup(cfg.CacheCleanupInterval)

	// Only external backends need a readiness check.
	pinger, _ := be.Store.(cache.Pinger)

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.Burst = cfg.RateLimitBurst

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Options{
		Registry:        fetcher,
		Pinger:          pinger,
		Metrics:         m,
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
		RateLimit:       rl,
		TrustedProxies:  cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting registry dashboard",
		"addr", cfg.Addr(),
		log.FieldURL, fetcher.URL(),
		log.FieldBackend, cfg.CacheBackend,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "addr", cfg.Addr())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
