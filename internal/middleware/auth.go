package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
)

// HashKey returns the hex SHA-256 of a full API key. Credentials store
// only this hash plus a display prefix.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Auth authenticates the bearer credential and injects the owning
// tenant into the request context. Lookup is by full-key hash; the
// stored hash is re-compared in constant time.
func Auth(store database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				unauthorized(w, "Provide an API key via 'Authorization: Bearer <key>' or the 'x-meerkat-key' header.")
				return
			}

			hash := HashKey(key)
			cred, err := store.GetCredentialByHash(r.Context(), hash)
			if err != nil || cred == nil {
				unauthorized(w, "Unknown API key.")
				return
			}
			if subtle.ConstantTimeCompare([]byte(cred.KeyHash), []byte(hash)) != 1 || !cred.Active {
				unauthorized(w, "Unknown API key.")
				return
			}

			tenant, err := store.GetTenant(r.Context(), cred.TenantID)
			if err != nil {
				if errors.Is(err, core.ErrNotFound) {
					unauthorized(w, "Unknown API key.")
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			if err := store.TouchCredential(r.Context(), cred.ID, time.Now().UTC()); err != nil {
				slog.Warn("credential touch failed", "credential_id", cred.ID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	return strings.TrimSpace(r.Header.Get("x-meerkat-key"))
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  "authentication_required",
		"detail": msg,
	})
}
