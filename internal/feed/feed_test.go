package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
)

const statusFeed = `[
  {
    "identifier": "a002",
    "publisher": {"name": "Fund A", "prefix": "360G-a"},
    "license": "https://creativecommons.org/licenses/by/4.0/",
    "modified": "2024-01-10T09:30:00+00:00",
    "issued": "2023-12-01",
    "datagetter_metadata": {"file_type": "xlsx", "valid": true, "datetime_downloaded": "2024-01-11T02:00:00+00:00"},
    "datagetter_aggregates": {"count": 3, "currencies": {"GBP": {"count": 3, "total_amount": 1500}},
      "min_award_date": "2019-04-01", "max_award_date": "2021-03-31"}
  },
  {
    "identifier": "b001",
    "publisher": {"name": "Fund B"},
    "issued": "not a date",
    "datagetter_aggregates": {"count": 5, "currencies": {"USD": {"count": 5, "total_amount": 900}}}
  }
]`

func serveFeed(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(statusFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(src Source, store cache.Store, m *metrics.Metrics) *Fetcher {
	return New(src, Options{Store: store, TTL: time.Hour, Timeout: 5 * time.Second, Metrics: m})
}

func TestFetchReadThrough(t *testing.T) {
	var hits atomic.Int32
	srv := serveFeed(t, &hits)
	store := cache.NewMemoryStore(time.Hour, 0)
	f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), store, nil)
	ctx := context.Background()

	first, err := f.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Records, 2)
	assert.Equal(t, uint64(1), first.Sequence)

	second, err := f.Fetch(ctx)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, int32(1), hits.Load(), "second fetch should be served from the cache")

	entry, ok, err := store.Get(ctx, cache.Key("GET", srv.URL))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.JSONEq(t, statusFeed, string(entry.Body))

	assert.Same(t, first, f.Latest())
}

func TestFetchUsesEntryWrittenByAnotherProcess(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := cache.NewMemoryStore(time.Hour, 0)
	stored := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(context.Background(), cache.Key("GET", url),
		cache.Entry{StatusCode: 200, ContentType: "application/json", Body: []byte(statusFeed), StoredAt: stored}, time.Hour))

	f := newTestFetcher(NewHTTPSource(url, nil), store, nil)
	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.FromCache)
	assert.True(t, stored.Equal(snap.FetchedAt))
	assert.Len(t, snap.Records, 2)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
		wantErr     error
	}{
		{"server error", http.StatusInternalServerError, "application/json", `[]`, 500, ErrUnexpectedStatus},
		{"not found", http.StatusNotFound, "text/plain", "gone", 404, ErrUnexpectedStatus},
		{"html page", http.StatusOK, "text/html", "<html></html>", 200, ErrContentType},
		{"truncated body", http.StatusOK, "application/json", `[{"identifier":`, 200, ErrDecode},
		{"object instead of array", http.StatusOK, "application/json", `{"identifier":"a"}`, 200, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), nil, nil)
			_, err := f.Fetch(context.Background())
			require.Error(t, err)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, srv.URL, fe.URL)
			assert.Equal(t, tt.wantStatus, fe.StatusCode)
			assert.ErrorIs(t, err, tt.wantErr)

			// Failures are not cached.
			_, err = f.Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, int32(2), hits.Load())
			assert.Nil(t, f.Latest())
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := newTestFetcher(NewHTTPSource(url, nil), nil, nil)
	_, err := f.Fetch(context.Background())

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
	assert.Contains(t, fe.Error(), url)
}

func TestMalformedDatesAreCountedAndRecordKept(t *testing.T) {
	var hits atomic.Int32
	srv := serveFeed(t, &hits)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), nil, m)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, 1, snap.Malformed)

	b := snap.Records[1]
	assert.Equal(t, "b001", b.Identifier.String)
	assert.False(t, b.Issued.Valid)
	assert.Equal(t, 5, b.Aggregates.Count)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedDates.WithLabelValues(core.FieldIssued)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("miss")))

	// Cache hits reuse the decoded snapshot and do not count again.
	_, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedDates.WithLabelValues(core.FieldIssued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("hit")))
}

func TestUndecodableRecordsAreSkipped(t *testing.T) {
	body := `[
	  {"identifier": "ok-1", "publisher": {"name": "Fund A"}, "modified": 20240110},
	  {"identifier": "broken", "datagetter_metadata": {"valid": "yes"}},
	  {"identifier": "ok-2", "publisher": {"name": "Fund B"}, "modified": "2024-01-10T09:30:00+0000"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), nil, m)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "ok-1", snap.Records[0].Identifier.String)
	assert.Equal(t, "ok-2", snap.Records[1].Identifier.String)
	assert.Equal(t, 1, snap.Skipped)

	// A numeric date is malformed for its field only.
	assert.Equal(t, 1, snap.Malformed)
	assert.False(t, snap.Records[0].Modified.Valid)
	assert.True(t, snap.Records[1].Modified.Valid)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedDates.WithLabelValues(core.FieldModified)))
}

func TestConcurrentFetchesShareOneDownload(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusFeed))
	}))
	defer srv.Close()

	f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), nil, nil)

	var wg sync.WaitGroup
	results := make([]*Snapshot, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := f.Fetch(context.Background())
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, snap := range results {
		require.NotNil(t, snap)
		assert.Len(t, snap.Records, 2)
	}
}

func TestCancelledCallerDoesNotAbortSharedDownload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusFeed))
	}))
	defer srv.Close()

	f := newTestFetcher(NewHTTPSource(srv.URL, srv.Client()), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx)
		done <- err
	}()
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return f.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
}

// gatedSource blocks each call until the test releases a response for it.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	started chan int
	gates   []chan Response
}

func (s *gatedSource) URL() string { return "https://example.org/status.json" }

func (s *gatedSource) Fetch(ctx context.Context) (Response, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	s.started <- i
	select {
	case r := <-s.gates[i]:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func feedOf(identifier string) Response {
	return Response{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`[{"identifier":"` + identifier + `"}]`),
	}
}

func TestSupersededDownloadDoesNotOverwriteCache(t *testing.T) {
	src := &gatedSource{
		started: make(chan int, 2),
		gates:   []chan Response{make(chan Response), make(chan Response)},
	}
	store := cache.NewMemoryStore(time.Hour, 0)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := newTestFetcher(src, store, m)
	ctx := context.Background()

	type result struct {
		snap *Snapshot
		err  error
	}
	older := make(chan result, 1)
	newer := make(chan result, 1)

	go func() {
		snap, err := f.Refresh(ctx)
		older <- result{snap, err}
	}()
	require.Equal(t, 0, <-src.started)

	go func() {
		snap, err := f.Refresh(ctx)
		newer <- result{snap, err}
	}()
	require.Equal(t, 1, <-src.started)

	// The later request finishes first.
	src.gates[1] <- feedOf("new")
	n := <-newer
	require.NoError(t, n.err)
	assert.Equal(t, uint64(2), n.snap.Sequence)

	src.gates[0] <- feedOf("old")
	o := <-older
	require.NoError(t, o.err)
	// The late caller is answered with the newer committed snapshot.
	assert.Equal(t, uint64(2), o.snap.Sequence)
	require.Len(t, o.snap.Records, 1)
	assert.Equal(t, "new", o.snap.Records[0].Identifier.String)

	entry, ok, err := store.Get(ctx, cache.Key("GET", src.URL()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(entry.Body), `"new"`)
	assert.Equal(t, "new", f.Latest().Records[0].Identifier.String)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupersededWrites))
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	a, b := s.Next(), s.Next()
	assert.Less(t, a, b)

	assert.True(t, s.Commit(b))
	assert.False(t, s.Commit(a), "older ticket must not replace a newer commit")
	assert.Equal(t, b, s.Committed())
	assert.True(t, s.Commit(b), "recommitting the latest ticket is allowed")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte(statusFeed), 0o644))

	src, err := NewSource(context.Background(), "file://"+path, nil)
	require.NoError(t, err)
	f := newTestFetcher(src, nil, nil)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Records, 2)
	assert.Equal(t, "file://"+path, snap.URL)

	missing := newTestFetcher(NewFileSource(filepath.Join(t.TempDir(), "none.json")), nil, nil)
	_, err = missing.Fetch(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()

	src, err := NewSource(ctx, "https://example.org/status.json", nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	src, err = NewSource(ctx, "data/status.json", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, src)

	src, err = NewSource(ctx, "gs://datagetter-360giving-output/branch/master/status.json", nil)
	require.NoError(t, err)
	gcs, ok := src.(*GCSSource)
	require.True(t, ok)
	assert.Equal(t, "datagetter-360giving-output", gcs.bucket)
	assert.Equal(t, "branch/master/status.json", gcs.object)

	_, err = NewSource(ctx, "ftp://example.org/status.json", nil)
	assert.Error(t, err)

	_, err = NewSource(ctx, "gs://bucket-only", nil)
	assert.Error(t, err)
}

func TestIsJSON(t *testing.T) {
	assert.True(t, isJSON("application/json"))
	assert.True(t, isJSON("application/json; charset=utf-8"))
	assert.True(t, isJSON("application/vnd.api+json"))
	assert.True(t, isJSON(""))
	assert.False(t, isJSON("text/html; charset=utf-8"))
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{URL: "https://example.org/status.json", StatusCode: 503, Err: ErrUnexpectedStatus}
	assert.Equal(t, "fetch https://example.org/status.json: status 503: unexpected status code", err.Error())
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
}
