// Package metrics holds the Prometheus collectors of the dashboard and
// the refresh worker.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks feed fetches, cache use, record quality and HTTP traffic.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	CacheLookups     *prometheus.CounterVec
	SupersededWrites prometheus.Counter
	MalformedDates   *prometheus.CounterVec
	SkippedRecords   prometheus.Counter
	RegistryRecords  prometheus.Gauge
	LastRefresh      prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	RateLimited      prometheus.Counter
	Suspicious       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_fetch_total",
			Help: "Registry feed fetches by outcome (hit, miss, error)",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_fetch_duration_seconds",
			Help:    "Duration of registry feed downloads",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_cache_lookups_total",
			Help: "Response cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		SupersededWrites: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_cache_superseded_writes_total",
			Help: "Downloads not written to the cache because a newer fetch already committed",
		}),
		MalformedDates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_malformed_dates_total",
			Help: "Date fields that could not be parsed, by field path",
		}, []string{"field"}),
		SkippedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_skipped_records_total",
			Help: "Feed entries dropped because they could not be decoded",
		}),
		RegistryRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "registry_records",
			Help: "Number of records in the last decoded registry snapshot",
		}),
		LastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Name: "registry_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful download",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		Suspicious: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_suspicious_requests_total",
			Help: "Requests flagged by the security detector, by reason",
		}, []string{"reason"}),
	}
}

// ObserveFetch records the duration of a download.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

// FetchOutcome counts a completed Fetch call.
func (m *Metrics) FetchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Superseded() {
	if m == nil {
		return
	}
	m.SupersededWrites.Inc()
}

func (m *Metrics) MalformedDate(field string) {
	if m == nil {
		return
	}
	m.MalformedDates.WithLabelValues(field).Inc()
}

func (m *Metrics) SkippedRecord() {
	if m == nil {
		return
	}
	m.SkippedRecords.Inc()
}

// Snapshot records the size and time of a fresh registry download.
func (m *Metrics) Snapshot(records int, at time.Time) {
	if m == nil {
		return
	}
	m.RegistryRecords.Set(float64(records))
	m.LastRefresh.Set(float64(at.Unix()))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, code int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RateLimitedRequest() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// SuspiciousRequest counts a request flagged by the detector.
func (m *Metrics) SuspiciousRequest(reason string) {
	if m == nil {
		return
	}
	m.Suspicious.WithLabelValues(reason).Inc()
}
