// Package billing receives events from the billing provider. The only
// event the gateway acts on today is a paid invoice, which opens a new
// usage period for the tenant.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/meerkat-ai/gateway/internal/database"
)

const maxEventBytes = 1 << 20

// Event is the subset of the provider payload the gateway reads.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
	Created  int64  `json:"created"`
}

// Webhook verifies provider signatures and applies billing events.
type Webhook struct {
	store  database.Store
	secret string
	logger *log.Logger

	// tolerance bounds the signed timestamp to defeat replay.
	tolerance time.Duration
}

func NewWebhook(store database.Store, secret string) *Webhook {
	return &Webhook{
		store:     store,
		secret:    secret,
		logger:    log.New(log.Writer(), "[BILLING] ", log.LstdFlags),
		tolerance: 5 * time.Minute,
	}
}

// SignPayload computes the hex HMAC-SHA256 over "<timestamp>.<body>".
func SignPayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP handles POST /v1/webhooks/billing. The body is read raw so
// the signature covers exactly the bytes the provider signed.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !wh.verify(body, r.Header.Get("X-Meerkat-Signature")) {
		wh.logger.Printf("rejected event with bad signature from %s", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	if err := wh.apply(r.Context(), &ev); err != nil {
		wh.logger.Printf("event %s (%s) failed: %v", ev.ID, ev.Type, err)
		http.Error(w, "event not applied", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"received": ev.ID})
}

// verify checks the "t=<unix>,v1=<hex>" signature header.
func (wh *Webhook) verify(body []byte, header string) bool {
	if wh.secret == "" || header == "" {
		return false
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signature = v
		}
	}
	if timestamp == "" || signature == "" {
		return false
	}

	expected := SignPayload(body, timestamp, wh.secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return false
	}
	return wh.fresh(timestamp)
}

func (wh *Webhook) fresh(timestamp string) bool {
	var unix int64
	for _, c := range timestamp {
		if c < '0' || c > '9' {
			return false
		}
		unix = unix*10 + int64(c-'0')
	}
	age := time.Since(time.Unix(unix, 0))
	return age > -wh.tolerance && age < wh.tolerance
}

func (wh *Webhook) apply(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case "invoice.paid":
		if err := wh.store.ResetUsage(ctx, ev.TenantID); err != nil {
			return err
		}
		wh.logger.Printf("usage reset for tenant %s (event %s)", ev.TenantID, ev.ID)
	default:
		// Unknown events acknowledge cleanly so the provider stops
		// retrying them.
		wh.logger.Printf("ignoring event type %q (event %s)", ev.Type, ev.ID)
	}
	return nil
}
