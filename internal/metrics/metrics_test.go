package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FetchOutcome("hit")
	m.FetchOutcome("hit")
	m.CacheLookup("miss")
	m.Superseded()
	m.MalformedDate("issued")
	m.SkippedRecord()
	m.Snapshot(42, time.Unix(1700000000, 0))
	m.ObserveHTTP("/ui/charts", 200, time.Now())
	m.RateLimitedRequest()
	m.SuspiciousRequest("sensitive_path")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupersededWrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedDates.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedRecords))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.RegistryRecords))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRefresh))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/ui/charts", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Suspicious.WithLabelValues("sensitive_path")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FetchOutcome("miss")
		m.ObserveFetch(time.Now())
		m.Snapshot(1, time.Now())
		m.ObserveHTTP("/", 200, time.Now())
		m.SuspiciousRequest("scanner")
	})
}
