package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a uuid-derived suffix rather than panicking.
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
	}
	return hex.EncodeToString(b)[:n]
}

// NewVerifyAuditID returns an id like aud_20260824_3fa9c1d2.
func NewVerifyAuditID(now time.Time) string {
	return fmt.Sprintf("aud_%s_%s", now.UTC().Format("20060102"), randomHex(8))
}

// NewShieldAuditID returns an id like aud_shd_20260824_3fa9c1d2.
func NewShieldAuditID(now time.Time) string {
	return fmt.Sprintf("aud_shd_%s_%s", now.UTC().Format("20060102"), randomHex(8))
}

// NewSessionID returns an id like ses_<uuid>.
func NewSessionID() string {
	return "ses_" + uuid.NewString()
}

// NewConfigID returns an id like cfg_<slug>_<6hex>, slugging the tenant
// name down to lowercase alphanumerics.
func NewConfigID(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '_'
		}
		return -1
	}, name)
	if len(slug) > 16 {
		slug = slug[:16]
	}
	if slug == "" {
		slug = "default"
	}
	return fmt.Sprintf("cfg_%s_%s", slug, randomHex(6))
}

// NewCredentialID returns an id like key_<8hex>.
func NewCredentialID() string {
	return "key_" + randomHex(8)
}

// IsShieldAuditID reports whether id carries the threat-audit prefix.
func IsShieldAuditID(id string) bool {
	return strings.HasPrefix(id, "aud_shd_")
}
