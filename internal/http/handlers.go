package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	// Check templates
	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	// Check cache backend
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			checks["cache"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["cache"] = "ok"
		}
	} else {
		checks["cache"] = "ok"
	}

	// The registry is loaded lazily, so a missing snapshot is reported but
	// does not fail readiness.
	if snap := s.registry.Latest(); snap != nil {
		checks["registry"] = map[string]interface{}{
			"records":    len(snap.Records),
			"fetched_at": snap.FetchedAt.Format(time.RFC3339),
			"age":        format.Ago(snap.FetchedAt, s.now()),
			"from_cache": snap.FromCache,
			"status":     "ok",
		}
	} else {
		checks["registry"] = "not_loaded"
	}

	sec := s.detector.GetMetrics()
	checks["security"] = map[string]interface{}{
		"suspicious_requests": sec.SuspiciousRequests,
		"invalid_ip_attempts": sec.InvalidIPAttempts,
		"status":              "ok",
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	_ = writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}
