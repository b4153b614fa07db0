package handlers

import (
	"github.com/meerkat-ai/gateway/internal/checks"
	"github.com/meerkat-ai/gateway/internal/circuitbreaker"
	"github.com/meerkat-ai/gateway/internal/database"
	"github.com/meerkat-ai/gateway/internal/kb"
	"github.com/meerkat-ai/gateway/internal/metrics"
	"github.com/meerkat-ai/gateway/internal/policy"
	"github.com/meerkat-ai/gateway/internal/session"
	"github.com/meerkat-ai/gateway/internal/shield"
)

// Deps bundles what the endpoint constructors need. Retriever may be
// nil when no embedder is configured; knowledge-base mode then degrades
// to self-consistency.
type Deps struct {
	Store     database.Store
	Policies  *policy.Service
	Sessions  *session.Manager
	Panel     *checks.Panel
	Retriever *kb.Retriever
	Metrics   *metrics.Metrics
	Breakers  *circuitbreaker.Manager

	// ShieldDefaults applies when a tenant policy has no shield rules.
	ShieldDefaults shield.Options
}
