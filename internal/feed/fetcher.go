// Package feed downloads the registry status feed, caches the raw
// response and turns it into normalized records.
package feed

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
)

const (
	tracerName     = "github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	defaultTimeout = 30 * time.Second
)

// Snapshot is one decoded version of the registry.
// Records are shared between callers and must not be modified.
type Snapshot struct {
	URL       string
	Records   []core.Record
	FetchedAt time.Time
	FromCache bool
	Sequence  uint64
	Malformed int
	// Skipped counts feed entries that could not be decoded at all.
	Skipped int
}

type Options struct {
	Store   cache.Store
	TTL     time.Duration
	Timeout time.Duration
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// Fetcher reads the feed through the response cache.
type Fetcher struct {
	source  Source
	store   cache.Store
	ttl     time.Duration
	timeout time.Duration
	logger  *log.Logger
	events  *log.StructuredLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	seq   Sequencer
	group singleflight.Group

	// writeMu makes commit-then-store atomic with respect to other downloads.
	writeMu sync.Mutex

	mu     sync.Mutex
	latest *Snapshot
	memo   *memoEntry
}

type memoEntry struct {
	storedAt time.Time
	size     int
	snap     *Snapshot
}

// New creates a Fetcher for source. A nil Store gets an in-memory cache.
func New(source Source, opts Options) *Fetcher {
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Store == nil {
		opts.Store = cache.NewMemoryStore(opts.TTL, 10*time.Minute)
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	logger := opts.Logger.WithComponent(log.ComponentFeed)
	return &Fetcher{
		source:  source,
		store:   opts.Store,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		now:     time.Now,
	}
}

// URL returns the feed location.
func (f *Fetcher) URL() string {
	return f.source.URL()
}

func (f *Fetcher) cacheKey() string {
	return cache.Key(http.MethodGet, f.source.URL())
}

// Latest returns the newest snapshot this Fetcher has produced, or nil.
func (f *Fetcher) Latest() *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

// Fetch returns the registry, from the cache when a fresh response is
// stored and from the source otherwise.
func (f *Fetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	ctx, span := f.tracer.Start(ctx, "feed.Fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("feed.url", f.source.URL()))

	start := time.Now()
	key := f.cacheKey()

	entry, ok, err := f.store.Get(ctx, key)
	switch {
	case err != nil:
		f.metrics.CacheLookup("error")
		f.logger.WarnContext(ctx, "Response cache read failed",
			log.FieldOperation, log.OpCacheGet, log.FieldCacheKey, key, log.FieldError, err)
	case ok:
		f.metrics.CacheLookup("hit")
		snap, err := f.fromCache(ctx, entry)
		if err == nil {
			f.metrics.FetchOutcome("hit")
			span.SetAttributes(attribute.Bool("feed.cache_hit", true), attribute.Int("feed.records", len(snap.Records)))
			span.SetStatus(codes.Ok, "")
			f.events.LogFetchCompleted(ctx, snap.URL, snap.Sequence, true, len(snap.Records), snap.Malformed, time.Since(start).Milliseconds())
			return snap, nil
		}
		f.logger.WarnContext(ctx, "Cached response is unusable, downloading again",
			log.FieldCacheKey, key, log.FieldError, err)
	default:
		f.metrics.CacheLookup("miss")
	}

	snap, err := f.download(ctx, key)
	if err != nil {
		f.metrics.FetchOutcome("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	f.metrics.FetchOutcome("miss")
	span.SetAttributes(
		attribute.Bool("feed.cache_hit", false),
		attribute.Int("feed.records", len(snap.Records)),
		attribute.Int64("feed.sequence", int64(snap.Sequence)),
	)
	span.SetStatus(codes.Ok, "")
	f.events.LogFetchCompleted(ctx, snap.URL, snap.Sequence, false, len(snap.Records), snap.Malformed, time.Since(start).Milliseconds())
	return snap, nil
}

// Refresh downloads the feed without consulting the cache and stores the
// result for later Fetch calls.
func (f *Fetcher) Refresh(ctx context.Context) (*Snapshot, error) {
	ctx, span := f.tracer.Start(ctx, "feed.Refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("feed.url", f.source.URL()))

	key := f.cacheKey()
	f.group.Forget(key)

	start := time.Now()
	snap, err := f.download(ctx, key)
	if err != nil {
		f.metrics.FetchOutcome("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	f.metrics.FetchOutcome("refresh")
	span.SetStatus(codes.Ok, "")
	f.logger.InfoContext(ctx, "Registry refreshed",
		log.FieldOperation, log.OpRefresh,
		log.FieldURL, snap.URL,
		log.FieldSequence, snap.Sequence,
		log.FieldRecords, len(snap.Records),
		log.FieldMalformed, snap.Malformed,
		log.FieldDuration, time.Since(start).Milliseconds())
	return snap, nil
}

// download shares one in-flight request among concurrent callers. The
// request itself is bounded by the fetch timeout, not by the first
// caller's context, so a caller giving up does not fail the others.
func (f *Fetcher) download(ctx context.Context, key string) (*Snapshot, error) {
	ch := f.group.DoChan(key, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.load(dctx, key)
	})

	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: f.source.URL(), Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (f *Fetcher) load(ctx context.Context, key string) (*Snapshot, error) {
	url := f.source.URL()
	ticket := f.seq.Next()

	start := time.Now()
	resp, err := f.source.Fetch(ctx)
	f.metrics.ObserveFetch(start)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	if !isJSON(resp.ContentType) {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %q", ErrContentType, resp.ContentType)}
	}

	entry := cache.Entry{
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Body:        resp.Body,
		StoredAt:    f.now(),
	}
	snap, err := f.decode(ctx, entry)
	if err != nil {
		return nil, err
	}
	snap.Sequence = ticket

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if !f.seq.Commit(ticket) {
		f.metrics.Superseded()
		f.logger.DebugContext(ctx, "Discarding superseded download",
			log.FieldSequence, ticket, "committed", f.seq.Committed())
		// Callers waiting on this download get the newer committed data.
		if latest := f.Latest(); latest != nil {
			return latest, nil
		}
		return snap, nil
	}

	if err := f.store.Put(ctx, key, entry, f.ttl); err != nil {
		f.logger.WarnContext(ctx, "Response cache write failed",
			log.FieldOperation, log.OpCachePut, log.FieldCacheKey, key, log.FieldError, err)
	}
	f.remember(entry, snap)
	f.metrics.Snapshot(len(snap.Records), entry.StoredAt)
	return snap, nil
}

func (f *Fetcher) fromCache(ctx context.Context, entry cache.Entry) (*Snapshot, error) {
	f.mu.Lock()
	m := f.memo
	f.mu.Unlock()
	if m != nil && m.storedAt.Equal(entry.StoredAt) && m.size == len(entry.Body) {
		return m.snap, nil
	}

	decoded, err := f.decode(ctx, entry)
	if err != nil {
		return nil, err
	}
	decoded.FromCache = true
	decoded.Sequence = f.seq.Committed()
	f.remember(entry, decoded)
	return decoded, nil
}

func (f *Fetcher) remember(entry cache.Entry, snap *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cached := *snap
	cached.FromCache = true
	f.memo = &memoEntry{storedAt: entry.StoredAt, size: len(entry.Body), snap: &cached}
	f.latest = snap
}

func (f *Fetcher) decode(ctx context.Context, entry cache.Entry) (*Snapshot, error) {
	url := f.source.URL()
	raw, skipped, err := core.DecodeRecords(entry.Body)
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: entry.StatusCode, Err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}

	snap := &Snapshot{
		URL:       url,
		Records:   make([]core.Record, 0, len(raw)),
		FetchedAt: entry.StoredAt,
		Skipped:   len(skipped),
	}
	for _, re := range skipped {
		f.metrics.SkippedRecord()
		f.logger.WarnContext(ctx, "Undecodable record skipped",
			log.FieldOperation, log.OpNormalize,
			log.FieldRecordID, re.Identifier,
			"index", re.Index,
			log.FieldError, re.Err)
	}
	for _, r := range raw {
		rec, err := core.Normalize(r)
		if err != nil {
			snap.Malformed += f.reportMalformed(ctx, rec, err)
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

// reportMalformed logs and counts every malformed date in err and
// returns how many there were.
func (f *Fetcher) reportMalformed(ctx context.Context, rec core.Record, err error) int {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	n := 0
	for _, e := range errs {
		var mde *core.MalformedDateError
		if !errors.As(e, &mde) {
			f.logger.WarnContext(ctx, "Record normalization failed",
				log.FieldOperation, log.OpNormalize, log.FieldError, e)
			continue
		}
		n++
		f.metrics.MalformedDate(mde.Field)
		f.logger.WarnContext(ctx, "Malformed date left empty",
			log.FieldOperation, log.OpNormalize,
			log.FieldRecordID, rec.Identifier.OrDefault(""),
			log.FieldDateField, mde.Field,
			"value", mde.Value,
			"error_type", log.ErrorTypeMalformedDate)
	}
	return n
}

// isJSON reports whether a response content type can carry the feed.
// A missing content type is accepted.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
