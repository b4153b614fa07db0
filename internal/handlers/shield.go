package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/middleware"
	"github.com/meerkat-ai/gateway/internal/shield"
)

const storedInputLimit = 5000

type shieldRequest struct {
	Input       string `json:"input"`
	SessionID   string `json:"session_id"`
	Sensitivity string `json:"sensitivity"`
	ConfigID    string `json:"config_id"`
}

// HandleShield scans ingress content for injection attacks, records the
// threat audit row, and links the scan into its session.
// POST /v1/shield
func HandleShield(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())
		ctx := r.Context()

		var req shieldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", core.ErrValidation))
			return
		}
		if strings.TrimSpace(req.Input) == "" {
			writeError(w, fmt.Errorf("input is required: %w", core.ErrValidation))
			return
		}

		sens := core.SensitivityMedium
		switch req.Sensitivity {
		case "":
		case string(core.SensitivityLow), string(core.SensitivityMedium), string(core.SensitivityHigh):
			sens = core.Sensitivity(req.Sensitivity)
		default:
			writeError(w, fmt.Errorf("sensitivity must be low, medium or high: %w", core.ErrValidation))
			return
		}

		pol, err := deps.Policies.Resolve(ctx, tenant.ID, req.ConfigID, tenant.Domain)
		if err != nil {
			writeError(w, err)
			return
		}
		opts := deps.ShieldDefaults
		if pol.DomainRules["aggregate_low_signals"] == "true" {
			opts.AggregateLowSignals = true
		}

		verdict := shield.NewEngine(opts).Scan(req.Input, sens)

		// Shield scans never consume retry budget; the cap binds verify
		// attempts only.
		sess, isNew, err := deps.Sessions.Begin(ctx, tenant.ID, req.SessionID, core.SessionShield, 0)
		if err != nil {
			writeError(w, err)
			return
		}

		rec := &core.ThreatRecord{
			AuditID:        core.NewShieldAuditID(time.Now()),
			TenantID:       tenant.ID,
			SessionID:      sess.ID,
			Timestamp:      time.Now().UTC(),
			Input:          truncateStored(req.Input),
			ThreatLevel:    verdict.ThreatLevel,
			AttackType:     primaryAttackType(verdict.Threats),
			ActionTaken:    recordedAction(verdict.SuggestedAction, verdict.Safe),
			Detail:         verdict.Detail,
			SanitizedInput: verdict.SanitizedInput,
			Threats:        verdict.Threats,
			Remediation:    verdict.Remediation,
		}
		if err := deps.Store.SaveThreat(ctx, rec); err != nil {
			writeError(w, fmt.Errorf("persist threat record: %w", err))
			return
		}

		if err := deps.Sessions.Advance(ctx, sess, isNew, core.SessionShield, rec.AuditID, rec.ActionTaken, false, 0); err != nil {
			slog.Warn("session advance failed", "session_id", sess.ID, "error", err)
		}
		deps.Metrics.RecordShieldScan(verdict.ThreatLevel, verdict.SuggestedAction)

		resp := map[string]interface{}{
			"audit_id":         rec.AuditID,
			"session_id":       sess.ID,
			"safe":             verdict.Safe,
			"threat_level":     verdict.ThreatLevel,
			"suggested_action": verdict.SuggestedAction,
			"sanitized_input":  verdict.SanitizedInput,
			"detail":           verdict.Detail,
		}
		if len(verdict.Threats) > 0 {
			resp["threats"] = verdict.Threats
		}
		if verdict.Remediation != nil {
			resp["remediation"] = verdict.Remediation
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// primaryAttackType is the type of the worst finding.
func primaryAttackType(threats []core.Threat) core.AttackType {
	var primary core.AttackType
	rank := 0
	for _, t := range threats {
		if r := core.SeverityRank(t.Severity); r > rank {
			rank = r
			primary = t.Type
		}
	}
	return primary
}

// recordedAction collapses the suggested action into the audit verb.
func recordedAction(action core.SuggestedAction, safe bool) string {
	if safe {
		return "NONE"
	}
	switch action {
	case core.ActionQuarantine:
		return "BLOCK"
	case core.ActionHumanReview:
		return "FLAG"
	default:
		return "SANITIZE"
	}
}

func truncateStored(s string) string {
	if len(s) <= storedInputLimit {
		return s
	}
	return s[:storedInputLimit]
}
