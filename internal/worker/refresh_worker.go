// Package worker keeps the shared response cache warm.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ThreeSixtyGiving/Dashboard/internal/amqp"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

// Refresher downloads the registry bypassing the cache.
type Refresher interface {
	Refresh(ctx context.Context) (*feed.Snapshot, error)
}

// Publisher announces completed refreshes.
type Publisher interface {
	PublishRefreshed(ctx context.Context, msg *amqp.RegistryRefreshed) error
}

// Consumer delivers refresh requests.
type Consumer interface {
	ConsumeRefreshRequests(ctx context.Context, handler func(context.Context, *amqp.RefreshRequest) error) error
}

// RefreshWorker refreshes the registry on a schedule and on request.
type RefreshWorker struct {
	refresher Refresher
	publisher Publisher
	consumer  Consumer
	interval  time.Duration
	logger    *log.Logger

	mu   sync.Mutex
	last *feed.Snapshot
}

// NewRefreshWorker creates a worker. publisher and consumer may be nil
// when no broker is configured.
func NewRefreshWorker(refresher Refresher, publisher Publisher, consumer Consumer, interval time.Duration, logger *log.Logger) *RefreshWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &RefreshWorker{
		refresher: refresher,
		publisher: publisher,
		consumer:  consumer,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run refreshes once at startup and then every interval, while consuming
// refresh requests, until ctx is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.runSchedule(ctx)
	})
	if w.consumer != nil {
		g.Go(func() error {
			return w.consumer.ConsumeRefreshRequests(ctx, w.HandleRefreshRequest)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *RefreshWorker) runSchedule(ctx context.Context) error {
	if err := w.RefreshOnce(ctx, ""); err != nil {
		w.logger.WarnContext(ctx, "Startup refresh failed, keeping schedule", log.FieldError, err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RefreshOnce(ctx, ""); err != nil {
				w.logger.WarnContext(ctx, "Scheduled refresh failed", log.FieldError, err)
			}
		}
	}
}

// HandleRefreshRequest processes one refresh request. A request issued
// before the last successful refresh completed is answered with that
// refresh instead of downloading again.
func (w *RefreshWorker) HandleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequest) error {
	if last := w.Last(); last != nil && !msg.Timestamp.IsZero() && msg.Timestamp.Before(last.FetchedAt) {
		w.logger.InfoContext(ctx, "Refresh request already satisfied",
			"id", msg.ID, log.FieldSequence, last.Sequence)
		w.announce(ctx, msg.ID, last)
		return nil
	}
	return w.RefreshOnce(ctx, msg.ID)
}

// RefreshOnce downloads the registry and announces the result.
func (w *RefreshWorker) RefreshOnce(ctx context.Context, requestID string) error {
	start := time.Now()
	snap, err := w.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}

	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Registry cache warmed",
		log.FieldOperation, log.OpRefresh,
		log.FieldRecords, len(snap.Records),
		log.FieldMalformed, snap.Malformed,
		log.FieldSkipped, snap.Skipped,
		log.FieldDuration, time.Since(start).Milliseconds(),
		"request_id", requestID)

	w.announce(ctx, requestID, snap)
	return nil
}

func (w *RefreshWorker) announce(ctx context.Context, requestID string, snap *feed.Snapshot) {
	if w.publisher == nil {
		return
	}
	msg := &amqp.RegistryRefreshed{
		RequestID: requestID,
		URL:       snap.URL,
		Records:   len(snap.Records),
		Malformed: snap.Malformed,
		FetchedAt: snap.FetchedAt,
		Timestamp: time.Now(),
	}
	// The refresh itself succeeded; a lost event is only logged.
	if err := w.publisher.PublishRefreshed(ctx, msg); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish refresh event", log.FieldError, err)
	}
}

// Last returns the most recent successful refresh, or nil.
func (w *RefreshWorker) Last() *feed.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
