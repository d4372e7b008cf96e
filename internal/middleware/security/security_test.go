package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig("https://unpkg.com", "https://cdn.plot.ly")).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "script-src 'self' https://unpkg.com https://cdn.plot.ly;")
	assert.Contains(t, csp, "img-src 'self' data: https:")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Cross-Origin-Embedder-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS only over TLS")

	req := httptest.NewRequest(http.MethodGet, "https://dashboard.example.org/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestPolicySkipsEmptyDirectives(t *testing.T) {
	p := Policy{{"default-src", []string{"'self'"}}, {"script-src", nil}, {"img-src", []string{"https:"}}}
	assert.Equal(t, "default-src 'self'; img-src https:", p.String())
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userAgent  string
		suspicious bool
	}{
		{"dashboard", "/?licence=https%3A%2F%2Fcreativecommons.org%2Flicenses%2Fby%2F4.0%2F", "Mozilla/5.0", false},
		{"api script", "/api/stats?currency=GBP", "curl/8.4.0", false},
		{"path traversal", "/static/../../etc/passwd", "Mozilla/5.0", true},
		{"dotenv lookup", "/.env", "Mozilla/5.0", true},
		{"scanner", "/", "sqlmap/1.7", true},
		{"long url", "/?search=" + strings.Repeat("a", 2100), "Mozilla/5.0", true},
		{"encoded script in search", "/ui/charts?search=%3Cscript%3Ealert(1)", "Mozilla/5.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("User-Agent", tt.userAgent)
			_, ok := d.Inspect(req)
			assert.Equal(t, tt.suspicious, ok)
		})
	}
}

func TestInspectReasons(t *testing.T) {
	d := NewDetector()

	req := httptest.NewRequest(http.MethodGet, "/.git/config", nil)
	reason, ok := d.Inspect(req)
	assert.True(t, ok)
	assert.Equal(t, ReasonSensitivePath, reason)

	req = httptest.NewRequest("TRACE", "/", nil)
	reason, ok = d.Inspect(req)
	assert.True(t, ok)
	assert.Equal(t, ReasonMethod, reason)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2, 3.3.3.3, 4.4.4.4, 5.5.5.5, 6.6.6.6, 7.7.7.7")
	reason, ok = d.Inspect(req)
	assert.True(t, ok)
	assert.Equal(t, ReasonForwardedChain, reason)

	// Inspect does not count.
	assert.Zero(t, d.GetMetrics().SuspiciousRequests)
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(req))

	// Forwarded headers from untrusted peers are ignored.
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, "198.51.100.7", d.ExtractClientIP(req))

	req.RemoteAddr = "127.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "127.0.0.1", d.ExtractClientIP(req))
	assert.Equal(t, int64(1), d.GetMetrics().InvalidIPAttempts)
}

func TestDetectorMiddlewareNeverBlocks(t *testing.T) {
	d := NewDetector()
	called := false
	var reasons []string
	h := d.Middleware(log.Discard(), func(reason string) { reasons = append(reasons, reason) })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.True(t, called)
	assert.Equal(t, int64(1), d.GetMetrics().SuspiciousRequests)
	assert.Equal(t, []string{"sensitive_path"}, reasons)

	// A nil observer is allowed.
	h = d.Middleware(log.Discard(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	assert.NotPanics(t, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/.env", nil))
	})
}
