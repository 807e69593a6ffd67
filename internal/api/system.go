package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each dependency probe of /health/ready.
const healthCheckTimeout = 2 * time.Second

// Component states reported by the health endpoints.
const (
	componentOK          = "ok"
	componentDisabled    = "disabled"
	componentUnavailable = "unavailable"
)

// handleRoot returns basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.name,
		"version": s.version,
		"status":  "running",
	})
}

// handleHealth reports the gateway's live counters and dependency states.
// It always returns 200; use /health/ready for gating traffic.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components, ready := s.checkComponents(r.Context())
	reg := s.gateway.Registry()

	status := "healthy"
	if !ready {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":    int64(time.Since(s.started).Seconds()),
		"connected_devices": reg.DeviceCount(),
		"connected_clients": reg.ClientCount(),
		"cached_devices":    s.gateway.Cache().Len(),
		"services":          components,
	})
}

// handleReady returns 200 when the database answers and 503 otherwise.
// The broker and InfluxDB are reported but never fail readiness: telemetry
// to them is best-effort.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	components, ready := s.checkComponents(r.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":    ready,
		"services": components,
	})
}

// handleLive always reports the process alive.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

// handleBrokerStats exposes the outbound publisher counters.
func (s *Server) handleBrokerStats(w http.ResponseWriter, _ *http.Request) {
	if s.broker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"stats":   s.broker.Stats(),
	})
}

// checkComponents probes every dependency and reports whether the
// required ones are healthy.
func (s *Server) checkComponents(ctx context.Context) (map[string]string, bool) {
	components := map[string]string{
		"database": probe(ctx, s.database),
		"broker":   componentDisabled,
		"influxdb": probe(ctx, s.influx),
	}
	if s.broker != nil {
		components["broker"] = probe(ctx, s.broker)
	}
	return components, components["database"] == componentOK
}

func probe(ctx context.Context, hc HealthChecker) string {
	if hc == nil {
		return componentDisabled
	}
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := hc.HealthCheck(checkCtx); err != nil {
		return componentUnavailable
	}
	return componentOK
}
