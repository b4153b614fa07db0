package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meerkat-ai/gateway/internal/billing"
	"github.com/meerkat-ai/gateway/internal/middleware"
)

// NewRouter assembles the full HTTP surface. The /v1 subtree runs
// behind authentication and per-tenant rate limiting; health, metrics
// and the billing webhook stay outside (the webhook authenticates by
// signature).
func NewRouter(deps Deps, limiter *middleware.RateLimiter, billingHook *billing.Webhook) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging)

	r.HandleFunc("/health", HandleHealth(deps)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if billingHook != nil {
		r.Handle("/v1/webhooks/billing", billingHook).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.Auth(deps.Store))
	api.Use(limiter.Middleware)

	api.HandleFunc("/shield", HandleShield(deps)).Methods(http.MethodPost)
	api.HandleFunc("/verify", HandleVerify(deps)).Methods(http.MethodPost)
	api.HandleFunc("/audit/{audit_id}", HandleGetAudit(deps)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{session_id}", HandleGetSession(deps)).Methods(http.MethodGet)
	api.HandleFunc("/configure", HandleConfigure(deps)).Methods(http.MethodPost)
	api.HandleFunc("/configure", HandleGetConfigure(deps)).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", HandleDashboard(deps)).Methods(http.MethodGet)

	return r
}
