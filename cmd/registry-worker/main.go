package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ThreeSixtyGiving/Dashboard/internal/amqp"
	"github.com/ThreeSixtyGiving/Dashboard/internal/backend"
	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/cli"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
	"github.com/ThreeSixtyGiving/Dashboard/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	m := metrics.New(prometheus.DefaultRegisterer)

	logger.Info("Starting registry-worker", log.FieldOperation, log.OpStartup)

	if !backend.BackendType(cfg.CacheBackend).Shared() {
		logger.Warn("Cache backend is not shared; refreshes only warm this process",
			log.FieldBackend, cfg.CacheBackend)
	}

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
	defer cacheManager.Stop()

	var (
		publisher worker.Publisher
		consumer  worker.Consumer
	)
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher, consumer = amqpClient, amqpClient
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - refreshing on schedule only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	w := worker.NewRefreshWorker(fetcher, publisher, consumer, cfg.RefreshInterval, logger)
	logger.Info("Refresh worker running", "interval", cfg.RefreshInterval, log.FieldURL, fetcher.URL())
	if err := w.Run(ctx); err != nil {
		logger.Error("Refresh worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
