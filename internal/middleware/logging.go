package middleware

import (
	"log"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging writes one line per request with method, path, status,
// duration and tenant (when authenticated).
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		tenantID := "-"
		if t := TenantFrom(r.Context()); t != nil {
			tenantID = t.ID
		}
		log.Printf("[HTTP] %s %s -> %d (%s) tenant=%s",
			r.Method, r.URL.Path, rec.status, time.Since(start), tenantID)
	})
}
