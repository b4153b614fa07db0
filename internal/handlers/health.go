package handlers

import (
	"net/http"
	"time"
)

// HandleHealth reports storage reachability and circuit breaker state.
// Unauthenticated; used by load balancer probes.
// GET /health
func HandleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "HEALTHY"
		storage := "ok"
		if err := deps.Store.Ping(r.Context()); err != nil {
			status = "DEGRADED"
			storage = "unreachable"
		}

		breakerStatus, breakers := deps.Breakers.HealthStatus()
		if breakerStatus != "HEALTHY" {
			status = "DEGRADED"
		}

		code := http.StatusOK
		if status != "HEALTHY" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"storage":   storage,
			"breakers":  breakers,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
