// Package session owns the retry state machine. A session groups every
// attempt at one logical task; shield and verify share the namespace.
// Transitions happen only on those two endpoints, never in background.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
)

type Manager struct {
	store database.Store
}

func NewManager(store database.Store) *Manager {
	return &Manager{store: store}
}

// Begin resolves the session for a call. Empty id starts a fresh,
// not-yet-persisted session; a supplied id must exist, belong to the
// tenant, be unresolved and be under the retry cap.
func (m *Manager) Begin(ctx context.Context, tenantID, sessionID string, kind core.SessionType, maxRetries int) (*core.Session, bool, error) {
	if sessionID == "" {
		return &core.Session{
			ID:        core.NewSessionID(),
			TenantID:  tenantID,
			Type:      kind,
			CreatedAt: time.Now().UTC(),
		}, true, nil
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.TenantID != tenantID {
		return nil, false, fmt.Errorf("session %s belongs to another tenant: %w", sessionID, core.ErrAccessDenied)
	}
	// Cap check first so a cap-resolved session reports the cap, not
	// generic resolution.
	if maxRetries > 0 && sess.AttemptCount >= maxRetries {
		return nil, false, fmt.Errorf("maximum retries reached: %w", core.ErrConflict)
	}
	if sess.Resolved {
		return nil, false, fmt.Errorf("session %s already resolved: %w", sessionID, core.ErrConflict)
	}
	return sess, false, nil
}

// Advance links an audit to the session and applies the transition
// rules: attempt count up, type upgrade to full_pipeline when both
// subsystems have touched it, resolution on final status or cap.
// finalStatus is non-empty when the caller considers the attempt
// terminal (verify PASS); cap resolution is applied here.
func (m *Manager) Advance(ctx context.Context, sess *core.Session, isNew bool, kind core.SessionType, auditID, attemptStatus string, isPass bool, maxRetries int) error {
	expected := sess.AttemptCount

	if sess.Type != kind && sess.Type != core.SessionFullPipeline {
		sess.Type = core.SessionFullPipeline
	}
	sess.AttemptCount++
	sess.LatestAuditID = auditID
	if isNew {
		sess.Type = kind
		sess.FirstAuditID = auditID
		sess.InitialStatus = attemptStatus
	}

	capped := maxRetries > 0 && sess.AttemptCount >= maxRetries && kind == core.SessionVerify
	if isPass || capped {
		now := time.Now().UTC()
		final := attemptStatus
		sess.FinalStatus = &final
		sess.Resolved = true
		sess.ResolvedAt = &now
	}

	if isNew {
		return m.store.CreateSession(ctx, sess)
	}

	err := m.store.UpdateSession(ctx, sess, expected)
	if errors.Is(err, core.ErrConflict) {
		// One concurrent writer got in first; re-read and retry once
		// against the fresh attempt count.
		fresh, gerr := m.store.GetSession(ctx, sess.ID)
		if gerr != nil {
			return gerr
		}
		if fresh.Resolved {
			return fmt.Errorf("session %s already resolved: %w", sess.ID, core.ErrConflict)
		}
		if maxRetries > 0 && fresh.AttemptCount >= maxRetries {
			return fmt.Errorf("maximum retries reached: %w", core.ErrConflict)
		}
		expected = fresh.AttemptCount
		sess.AttemptCount = fresh.AttemptCount + 1
		capped = maxRetries > 0 && sess.AttemptCount >= maxRetries && kind == core.SessionVerify
		if isPass || capped {
			now := time.Now().UTC()
			final := attemptStatus
			sess.FinalStatus = &final
			sess.Resolved = true
			sess.ResolvedAt = &now
		}
		return m.store.UpdateSession(ctx, sess, expected)
	}
	return err
}

// History returns the session plus its linked verification attempts.
func (m *Manager) History(ctx context.Context, tenantID, sessionID string) (*core.Session, []core.VerificationRecord, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.TenantID != tenantID {
		return nil, nil, fmt.Errorf("session %s belongs to another tenant: %w", sessionID, core.ErrAccessDenied)
	}
	attempts, err := m.store.ListSessionVerifications(ctx, tenantID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, attempts, nil
}
