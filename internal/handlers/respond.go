// Package handlers exposes the HTTP surface: shield, verify, audit
// retrieval, policy configuration, the dashboard and health.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/meerkat-ai/gateway/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps the domain error taxonomy onto HTTP. Quota errors get
// the full upgrade payload; everything unrecognized is a 500 with no
// internals leaked.
func writeError(w http.ResponseWriter, err error) {
	var qe *core.QuotaError
	if errors.As(err, &qe) {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       "quota_exceeded",
			"detail":      qe.Error(),
			"plan":        qe.Plan,
			"limit":       qe.Limit,
			"used":        qe.Used,
			"resets_at":   qe.ResetsAt,
			"upgrade_url": qe.UpgradeURL,
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errBody("validation_error", err))
	case errors.Is(err, core.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errBody("authentication_required", err))
	case errors.Is(err, core.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, errBody("access_denied", err))
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody("not_found", err))
	case errors.Is(err, core.ErrConflict):
		writeJSON(w, http.StatusConflict, errBody("conflict", err))
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "internal_error",
			"detail": "The request could not be completed.",
		})
	}
}

func errBody(code string, err error) map[string]string {
	return map[string]string{"error": code, "detail": err.Error()}
}
