package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meerkat-ai/gateway/internal/checks"
	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/kb"
	"github.com/meerkat-ai/gateway/internal/middleware"
	"github.com/meerkat-ai/gateway/internal/policy"
	"github.com/meerkat-ai/gateway/internal/remediation"
)

type verifyRequest struct {
	Input            string   `json:"input"`
	Output           string   `json:"output"`
	Context          string   `json:"context"`
	Domain           string   `json:"domain"`
	AgentName        string   `json:"agent_name"`
	Model            string   `json:"model"`
	SessionID        string   `json:"session_id"`
	ConfigID         string   `json:"config_id"`
	Checks           []string `json:"checks"`
	UseKnowledgeBase *bool    `json:"use_knowledge_base"`
}

// HandleVerify runs the full output-governance pipeline: policy and
// quota resolution, session handling, evidence selection, the check
// panel, fusion, remediation, and the audit write. The audit row is
// persisted before anything is returned; a failed write fails the call.
// POST /v1/verify
func HandleVerify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())
		ctx := r.Context()
		started := time.Now()

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid request body: %w", core.ErrValidation))
			return
		}
		if strings.TrimSpace(req.Output) == "" {
			writeError(w, fmt.Errorf("output is required: %w", core.ErrValidation))
			return
		}
		if req.Domain != "" && !core.ValidDomain(req.Domain) {
			writeError(w, fmt.Errorf("unknown domain %q: %w", req.Domain, core.ErrValidation))
			return
		}

		pol, err := deps.Policies.Resolve(ctx, tenant.ID, req.ConfigID, tenant.Domain)
		if err != nil {
			writeError(w, err)
			return
		}

		domain := pol.Domain
		if req.Domain != "" {
			domain = core.Domain(req.Domain)
		}
		if domain == "" {
			domain = core.DomainGeneral
		}

		// Quota reads before the work, counts after the audit write. A
		// denied call still reports its usage headers.
		if err := policy.CheckQuota(tenant, time.Now()); err != nil {
			deps.Metrics.RecordQuotaDenial()
			setUsageHeaders(w, policy.UsageFor(tenant.Plan, tenant.VerificationsUsed))
			writeError(w, err)
			return
		}

		sess, isNew, err := deps.Sessions.Begin(ctx, tenant.ID, req.SessionID, core.SessionVerify, pol.MaxRetries)
		if err != nil {
			writeError(w, err)
			return
		}
		attempt := sess.AttemptCount + 1

		mode, kbResult := selectEvidence(r, deps, pol, tenant.ID, &req)

		selected := checks.SelectChecks(pol, req.Checks)
		results := deps.Panel.Evaluate(ctx, checks.Input{
			Question:  req.Input,
			Output:    req.Output,
			Context:   req.Context,
			KBContext: kbResult.Context,
			Domain:    domain,
		}, selected)
		recordFallbacks(deps, results)

		trust := checks.Fuse(results)
		status := checks.StatusFor(trust, pol.AutoApproveThreshold, pol.AutoBlockThreshold)
		flags := checks.CollectFlags(results)
		corrections := checks.CollectCorrections(results)

		rem := remediation.Build(remediation.BuildInput{
			Status:      status,
			Domain:      domain,
			Corrections: corrections,
			Attempt:     attempt,
			MaxRetries:  pol.MaxRetries,
			Mode:        mode,
		})

		humanReview := status == core.StatusFlag ||
			(rem != nil && rem.SuggestedAction == core.ActionHumanReview)

		rec := &core.VerificationRecord{
			AuditID:             core.NewVerifyAuditID(time.Now()),
			TenantID:            tenant.ID,
			Timestamp:           time.Now().UTC(),
			AgentName:           req.AgentName,
			Model:               req.Model,
			Domain:              domain,
			Input:               req.Input,
			Output:              req.Output,
			Context:             req.Context,
			TrustScore:          trust,
			Status:              status,
			Checks:              results,
			Flags:               flags,
			HumanReviewRequired: humanReview,
			SessionID:           sess.ID,
			Attempt:             attempt,
			Mode:                mode,
			Remediation:         rem,
		}
		if err := deps.Store.SaveVerification(ctx, rec); err != nil {
			writeError(w, fmt.Errorf("persist audit record: %w", err))
			return
		}

		isPass := status == core.StatusPass
		if err := deps.Sessions.Advance(ctx, sess, isNew, core.SessionVerify, rec.AuditID, string(status), isPass, pol.MaxRetries); err != nil {
			// The audit row exists; a lost session race does not void the
			// verdict.
			slog.Warn("session advance failed", "session_id", sess.ID, "error", err)
		}
		if sess.Resolved {
			deps.Metrics.RecordSessionResolved(string(status))
		}

		usage, err := deps.Policies.RecordUsage(ctx, tenant)
		if err != nil {
			slog.Warn("usage record failed", "tenant_id", tenant.ID, "error", err)
		} else {
			setUsageHeaders(w, usage)
		}
		deps.Metrics.RecordVerification(status, domain, trust)

		kbMatches := kbResult.Matches
		if kbMatches == nil {
			kbMatches = []core.KBMatch{}
		}
		resp := map[string]interface{}{
			"audit_id":               rec.AuditID,
			"timestamp":              rec.Timestamp.Format(time.RFC3339),
			"trust_score":            trust,
			"status":                 status,
			"checks":                 results,
			"flags":                  flags,
			"human_review_required":  humanReview,
			"session_id":             sess.ID,
			"attempt":                attempt,
			"verification_mode":      mode,
			"recommendations":        checks.Recommendations(results),
			"knowledge_base_used":    len(kbResult.Matches) > 0,
			"knowledge_base_matches": kbMatches,
			"processing_time_ms":     time.Since(started).Milliseconds(),
		}
		if rem != nil {
			resp["remediation"] = rem
		}
		if !isNew {
			resp["linked_attempts"] = attempt - 1
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// selectEvidence decides the verification mode. Caller context wins;
// otherwise the tenant knowledge base is searched when enabled; with
// neither, the checks run self-consistency only. Retrieval failures
// degrade rather than abort.
func selectEvidence(r *http.Request, deps Deps, pol *core.Policy, tenantID string, req *verifyRequest) (core.VerificationMode, kb.Result) {
	if strings.TrimSpace(req.Context) != "" {
		return core.ModeGrounded, kb.Result{}
	}

	useKB := pol.KnowledgeBaseEnabled
	if req.UseKnowledgeBase != nil {
		useKB = *req.UseKnowledgeBase && pol.KnowledgeBaseEnabled
	}
	if !useKB || deps.Retriever == nil {
		return core.ModeSelfConsistency, kb.Result{}
	}

	// The AI output is what gets verified, so it drives retrieval.
	query := req.Output
	if strings.TrimSpace(query) == "" {
		query = req.Input
	}
	result, err := deps.Retriever.Retrieve(r.Context(), tenantID, query, pol.KBTopK, pol.KBMinRelevance)
	if err != nil {
		slog.Warn("knowledge base retrieval failed", "tenant_id", tenantID, "error", err)
		return core.ModeSelfConsistency, kb.Result{}
	}
	if result.Context == "" {
		return core.ModeSelfConsistency, kb.Result{}
	}
	return core.ModeKnowledgeBase, result
}

func recordFallbacks(deps Deps, results map[core.CheckName]core.CheckResult) {
	for name, res := range results {
		for _, f := range res.Flags {
			if strings.HasSuffix(f, "_unavailable") {
				deps.Metrics.RecordFallback(string(name))
				break
			}
		}
	}
}

func setUsageHeaders(w http.ResponseWriter, u policy.Usage) {
	w.Header().Set("X-Meerkat-Usage", strconv.FormatInt(u.Used, 10))
	if u.Limit > 0 {
		w.Header().Set("X-Meerkat-Limit", strconv.FormatInt(u.Limit, 10))
		w.Header().Set("X-Meerkat-Remaining", strconv.FormatInt(u.Remaining, 10))
	}
	if u.WarnPct > 0 {
		w.Header().Set("X-Meerkat-Warning",
			fmt.Sprintf("%d%% of monthly verification quota used", u.WarnPct))
	}
}
