// Package database persists tenants, policies, audits, sessions, quota
// counters and knowledge-base chunks. Two implementations: Postgres for
// production and an in-memory store for tests and local runs.
package database

import (
	"context"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/kb"
)

// Store is the full persistence surface of the gateway. Audits are
// append-only; sessions advance under optimistic concurrency; the usage
// counter increments atomically.
type Store interface {
	// Tenants and credentials.
	CreateTenant(ctx context.Context, t *core.Tenant) error
	GetTenant(ctx context.Context, id string) (*core.Tenant, error)
	CreateCredential(ctx context.Context, c *core.Credential) error
	GetCredentialByHash(ctx context.Context, keyHash string) (*core.Credential, error)
	TouchCredential(ctx context.Context, id string, at time.Time) error

	// Policies. GetPolicy with empty configID returns the tenant
	// default.
	SavePolicy(ctx context.Context, p *core.Policy) error
	GetPolicy(ctx context.Context, tenantID, configID string) (*core.Policy, error)

	// Audit log.
	SaveVerification(ctx context.Context, rec *core.VerificationRecord) error
	GetVerification(ctx context.Context, tenantID, auditID string) (*core.VerificationRecord, error)
	ListSessionVerifications(ctx context.Context, tenantID, sessionID string) ([]core.VerificationRecord, error)
	ListVerificationsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]core.VerificationRecord, error)
	SaveThreat(ctx context.Context, rec *core.ThreatRecord) error
	GetThreat(ctx context.Context, tenantID, auditID string) (*core.ThreatRecord, error)

	// Sessions. UpdateSession applies only when the stored attempt
	// count still equals expectedAttempts; otherwise core.ErrConflict.
	CreateSession(ctx context.Context, s *core.Session) error
	GetSession(ctx context.Context, id string) (*core.Session, error)
	UpdateSession(ctx context.Context, s *core.Session, expectedAttempts int) error

	// Quota counter: atomic increment with read-back, and the billing
	// reset.
	IncrementUsage(ctx context.Context, tenantID string) (int64, error)
	ResetUsage(ctx context.Context, tenantID string) error

	// Knowledge base (read-only).
	kb.ChunkSearcher

	Ping(ctx context.Context) error
}
