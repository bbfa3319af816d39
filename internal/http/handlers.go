package http

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.clock().UTC().Format(time.RFC3339),
		"uptime":    s.clock().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the backing store and reports request counters.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "ok"
	}

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateMetrics := s.rateLimiter.GetMetrics()
	checks["requests_total"] = traceMetrics.TotalRequests
	checks["rate_limit"] = map[string]any{
		"active_clients": rateMetrics.ClientCount,
		"hits":           rateMetrics.TotalHits,
	}
	checks["suspicious_requests"] = s.securityDetector.GetMetrics().SuspiciousRequests

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.clock().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
