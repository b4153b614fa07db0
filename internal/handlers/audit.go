package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/middleware"
)

// HandleGetAudit fetches one audit record, verify or shield, routed on
// the id prefix. ?include=session attaches the owning session and its
// linked attempts.
// GET /v1/audit/{audit_id}
func HandleGetAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())
		auditID := mux.Vars(r)["audit_id"]
		includeSession := r.URL.Query().Get("include") == "session"

		if core.IsShieldAuditID(auditID) {
			rec, err := deps.Store.GetThreat(r.Context(), tenant.ID, auditID)
			if err != nil {
				writeError(w, err)
				return
			}
			if !includeSession || rec.SessionID == "" {
				writeJSON(w, http.StatusOK, rec)
				return
			}
			sess, attempts, err := deps.Sessions.History(r.Context(), tenant.ID, rec.SessionID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"audit":    rec,
				"session":  sess,
				"attempts": attemptSummaries(attempts),
			})
			return
		}

		rec, err := deps.Store.GetVerification(r.Context(), tenant.ID, auditID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !includeSession || rec.SessionID == "" {
			writeJSON(w, http.StatusOK, rec)
			return
		}
		sess, attempts, err := deps.Sessions.History(r.Context(), tenant.ID, rec.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"audit":    rec,
			"session":  sess,
			"attempts": attemptSummaries(attempts),
		})
	}
}

// HandleGetSession returns a session and the trajectory of its verify
// attempts.
// GET /v1/sessions/{session_id}
func HandleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())
		sessionID := mux.Vars(r)["session_id"]

		sess, attempts, err := deps.Sessions.History(r.Context(), tenant.ID, sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session":  sess,
			"attempts": attemptSummaries(attempts),
		})
	}
}

// attemptSummary is the compact per-attempt view in session responses;
// the full record stays behind the audit endpoint.
type attemptSummary struct {
	AuditID    string      `json:"audit_id"`
	Attempt    int         `json:"attempt"`
	TrustScore int         `json:"trust_score"`
	Status     core.Status `json:"status"`
	Timestamp  string      `json:"timestamp"`
}

func attemptSummaries(records []core.VerificationRecord) []attemptSummary {
	out := make([]attemptSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, attemptSummary{
			AuditID:    rec.AuditID,
			Attempt:    rec.Attempt,
			TrustScore: rec.TrustScore,
			Status:     rec.Status,
			Timestamp:  rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
