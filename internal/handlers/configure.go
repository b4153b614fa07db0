package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/middleware"
)

type configureRequest struct {
	Domain               string            `json:"domain"`
	AutoApproveThreshold *int              `json:"auto_approve_threshold"`
	AutoBlockThreshold   *int              `json:"auto_block_threshold"`
	RequiredChecks       []string          `json:"required_checks"`
	OptionalChecks       []string          `json:"optional_checks"`
	KnowledgeBaseEnabled *bool             `json:"knowledge_base_enabled"`
	KBTopK               *int              `json:"kb_top_k"`
	KBMinRelevance       *float64          `json:"kb_min_relevance"`
	MaxRetries           *int              `json:"max_retries"`
	DomainRules          map[string]string `json:"domain_rules"`
	Alerts               map[string]string `json:"alerts"`
}

// HandleConfigure stores a governance policy as the tenant default.
// Omitted fields keep the built-in default values, so partial bodies
// are fine.
// POST /v1/configure
func HandleConfigure(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())

		var req configureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", core.ErrValidation))
			return
		}

		pol := core.DefaultPolicy(tenant.ID, tenant.Domain)
		if req.Domain != "" {
			pol.Domain = core.Domain(req.Domain)
		}
		if req.AutoApproveThreshold != nil {
			pol.AutoApproveThreshold = *req.AutoApproveThreshold
		}
		if req.AutoBlockThreshold != nil {
			pol.AutoBlockThreshold = *req.AutoBlockThreshold
		}
		if req.RequiredChecks != nil {
			pol.RequiredChecks = toCheckNames(req.RequiredChecks)
		}
		if req.OptionalChecks != nil {
			pol.OptionalChecks = toCheckNames(req.OptionalChecks)
		}
		if req.KnowledgeBaseEnabled != nil {
			pol.KnowledgeBaseEnabled = *req.KnowledgeBaseEnabled
		}
		if req.KBTopK != nil {
			pol.KBTopK = *req.KBTopK
		}
		if req.KBMinRelevance != nil {
			pol.KBMinRelevance = *req.KBMinRelevance
		}
		if req.MaxRetries != nil {
			pol.MaxRetries = *req.MaxRetries
		}
		pol.DomainRules = req.DomainRules
		pol.Alerts = req.Alerts
		pol.ConfigID = core.NewConfigID(tenant.Name)

		if err := deps.Policies.Save(r.Context(), pol); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"config_id": pol.ConfigID,
			"created":   pol.CreatedAt,
			"policy":    pol,
		})
	}
}

// HandleGetConfigure returns the effective policy: ?config_id= selects
// a named config, otherwise the tenant default (built-in default when
// nothing is stored).
// GET /v1/configure
func HandleGetConfigure(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())
		configID := r.URL.Query().Get("config_id")

		pol, err := deps.Policies.Resolve(r.Context(), tenant.ID, configID, tenant.Domain)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pol)
	}
}

// toCheckNames passes strings through; unknown names are caught by
// policy validation on save.
func toCheckNames(names []string) []core.CheckName {
	out := make([]core.CheckName, 0, len(names))
	for _, n := range names {
		out = append(out, core.CheckName(n))
	}
	return out
}
