// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meerkat-ai/gateway/internal/core"
)

// Metrics holds every collector the gateway records into.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	TrustScore         *prometheus.HistogramVec
	ShieldScansTotal   *prometheus.CounterVec
	CheckDuration      *prometheus.HistogramVec
	CheckFallbacks     *prometheus.CounterVec
	QuotaDenials       prometheus.Counter
	SessionsResolved   *prometheus.CounterVec
}

// New registers all collectors on the given registerer (pass
// prometheus.DefaultRegisterer in main, a fresh registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meerkat_verifications_total",
			Help: "Verify calls by final status and domain.",
		}, []string{"status", "domain"}),
		TrustScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meerkat_trust_score",
			Help:    "Distribution of fused trust scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"domain"}),
		ShieldScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meerkat_shield_scans_total",
			Help: "Shield scans by threat level and suggested action.",
		}, []string{"threat_level", "action"}),
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meerkat_check_duration_seconds",
			Help:    "Wall time per governance check.",
			Buckets: prometheus.DefBuckets,
		}, []string{"check"}),
		CheckFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meerkat_check_fallbacks_total",
			Help: "Heuristic fallbacks by remote service.",
		}, []string{"service"}),
		QuotaDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "meerkat_quota_denials_total",
			Help: "Verify calls denied on the monthly cap.",
		}),
		SessionsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meerkat_sessions_resolved_total",
			Help: "Sessions resolved by final status.",
		}, []string{"final_status"}),
	}
}

func (m *Metrics) RecordVerification(status core.Status, domain core.Domain, trustScore int) {
	m.VerificationsTotal.WithLabelValues(string(status), string(domain)).Inc()
	m.TrustScore.WithLabelValues(string(domain)).Observe(float64(trustScore))
}

func (m *Metrics) RecordShieldScan(level core.ThreatLevel, action core.SuggestedAction) {
	m.ShieldScansTotal.WithLabelValues(string(level), string(action)).Inc()
}

func (m *Metrics) RecordCheckDuration(check core.CheckName, seconds float64) {
	m.CheckDuration.WithLabelValues(string(check)).Observe(seconds)
}

func (m *Metrics) RecordFallback(service string) {
	m.CheckFallbacks.WithLabelValues(service).Inc()
}

func (m *Metrics) RecordQuotaDenial() {
	m.QuotaDenials.Inc()
}

func (m *Metrics) RecordSessionResolved(finalStatus string) {
	m.SessionsResolved.WithLabelValues(finalStatus).Inc()
}
