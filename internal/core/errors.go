package core

import "errors"

// Sentinel errors forming the gateway error taxonomy. Handlers map these
// to HTTP statuses; everything else is an internal storage error.
var (
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("authentication required")
	ErrAccessDenied  = errors.New("access denied")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// QuotaError is the rich payload returned when a monthly cap is hit.
type QuotaError struct {
	Plan       Plan   `json:"plan"`
	Limit      int64  `json:"limit"`
	Used       int64  `json:"used"`
	ResetsAt   string `json:"resets_at"` // UTC first of next month, RFC 3339
	UpgradeURL string `json:"upgrade_url"`
}

func (e *QuotaError) Error() string {
	return "monthly verification limit reached"
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }
