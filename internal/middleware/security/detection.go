package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

// Reason names the rule a suspicious request matched.
type Reason string

const (
	ReasonSensitivePath  Reason = "sensitive_path"
	ReasonInjection      Reason = "injection"
	ReasonScanner        Reason = "scanner"
	ReasonMethod         Reason = "method"
	ReasonLongURL        Reason = "long_url"
	ReasonForwardedChain Reason = "forwarded_chain"
)

const (
	maxURLLength     = 2048
	maxForwardedHops = 5
)

var (
	// Paths nothing in the dashboard serves but scanners ask for.
	sensitivePathPatterns = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "wp-login",
		"phpmyadmin", "admin.php", "config.php", "etc/passwd", "cmd.exe",
	}
	// Checked against decoded query values, so publisher searches and
	// licence URLs pass.
	injectionPatterns = []string{
		"<script", "javascript:", "eval(", "union select", "../",
	}
	// Vulnerability scanners. Scripts and crawlers reading the open data
	// API are expected.
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags suspicious requests and resolves client addresses.
type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector creates a detector trusting forwarded headers from loopback
// and private networks.
func NewDetector() *Detector {
	return &Detector{
		metrics: &DetectionMetrics{},
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Inspect returns the first rule r matches.
func (d *Detector) Inspect(r *http.Request) (Reason, bool) {
	if containsAny(strings.ToLower(r.URL.Path), sensitivePathPatterns) {
		return ReasonSensitivePath, true
	}
	for _, values := range r.URL.Query() {
		for _, v := range values {
			if containsAny(strings.ToLower(v), injectionPatterns) {
				return ReasonInjection, true
			}
		}
	}
	if containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents) {
		return ReasonScanner, true
	}
	for _, m := range unusualMethods {
		if r.Method == m {
			return ReasonMethod, true
		}
	}
	if len(r.URL.String()) > maxURLLength {
		return ReasonLongURL, true
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardedHops {
		return ReasonForwardedChain, true
	}
	return "", false
}

// ExtractClientIP returns the client address. X-Forwarded-For and
// X-Real-IP are honoured only when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !d.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the original client.
		first, _, _ := strings.Cut(xff, ",")
		clientIP := strings.TrimSpace(first)
		if net.ParseIP(clientIP) != nil {
			return clientIP
		}
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Middleware logs suspicious requests and passes their reason to observe,
// which may be nil. Requests are never blocked here; rate limiting does
// that.
func (d *Detector) Middleware(logger *log.Logger, observe func(reason string)) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason, ok := d.Inspect(r); ok {
				atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
				if observe != nil {
					observe(string(reason))
				}
				logger.WarnContext(r.Context(), "Suspicious request",
					"reason", reason,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldClientIP, d.ExtractClientIP(r),
					log.FieldUserAgent, r.Header.Get("User-Agent"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
