package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/kb"
)

// PostgresStore backs the gateway with Postgres plus the pgvector
// extension for chunk similarity search.
//
// Expected schema (managed by migrations outside this service):
//
//	tenants(id, name, plan, domain, verifications_used, created_at)
//	credentials(id, tenant_id, prefix, key_hash, active, last_used_at, created_at)
//	policies(config_id, tenant_id, is_default, body jsonb, created_at)
//	verifications(audit_id, tenant_id, session_id, ts, status, trust_score, body jsonb)
//	threats(audit_id, tenant_id, session_id, ts, threat_level, body jsonb)
//	sessions(id, tenant_id, type, first_audit_id, latest_audit_id,
//	         attempt_count, initial_status, final_status, resolved,
//	         created_at, resolved_at)
//	kb_chunks(id, tenant_id, document_name, content, embedding vector(1536))
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Tenants and credentials
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateTenant(ctx context.Context, t *core.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, plan, domain, verifications_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Plan, t.Domain, t.VerificationsUsed, t.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("tenant %s: %w", t.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*core.Tenant, error) {
	var t core.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, plan, domain, verifications_used, created_at
		FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Plan, &t.Domain, &t.VerificationsUsed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, c *core.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, tenant_id, prefix, key_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TenantID, c.Prefix, c.KeyHash, c.Active, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredentialByHash(ctx context.Context, keyHash string) (*core.Credential, error) {
	var c core.Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, prefix, key_hash, active, last_used_at, created_at
		FROM credentials WHERE key_hash = $1`, keyHash).
		Scan(&c.ID, &c.TenantID, &c.Prefix, &c.KeyHash, &c.Active, &c.LastUsedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) TouchCredential(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Policies
// ---------------------------------------------------------------------------

func (s *PostgresStore) SavePolicy(ctx context.Context, p *core.Policy) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE policies SET is_default = FALSE WHERE tenant_id = $1`, p.TenantID); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policies (config_id, tenant_id, is_default, body, created_at)
		VALUES ($1, $2, TRUE, $3, $4)
		ON CONFLICT (config_id) DO UPDATE SET body = $3, is_default = TRUE`,
		p.ConfigID, p.TenantID, body, p.CreatedAt); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetPolicy(ctx context.Context, tenantID, configID string) (*core.Policy, error) {
	var body []byte
	var err error
	if configID == "" {
		err = s.db.QueryRowContext(ctx, `
			SELECT body FROM policies
			WHERE tenant_id = $1 AND is_default = TRUE
			ORDER BY created_at DESC LIMIT 1`, tenantID).Scan(&body)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT body FROM policies
			WHERE tenant_id = $1 AND config_id = $2`, tenantID, configID).Scan(&body)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %q: %w", configID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	var p core.Policy
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------------

func (s *PostgresStore) SaveVerification(ctx context.Context, rec *core.VerificationRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode verification: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifications (audit_id, tenant_id, session_id, ts, status, trust_score, flags, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.AuditID, rec.TenantID, rec.SessionID, rec.Timestamp,
		rec.Status, rec.TrustScore, pq.Array(rec.Flags), body)
	if isUniqueViolation(err) {
		return fmt.Errorf("audit %s: %w", rec.AuditID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVerification(ctx context.Context, tenantID, auditID string) (*core.VerificationRecord, error) {
	var ownerID string
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, body FROM verifications WHERE audit_id = $1`, auditID).
		Scan(&ownerID, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	if ownerID != tenantID {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrAccessDenied)
	}
	var rec core.VerificationRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode verification: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListSessionVerifications(ctx context.Context, tenantID, sessionID string) ([]core.VerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM verifications
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY ts ASC`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session verifications: %w", err)
	}
	defer rows.Close()
	return scanVerifications(rows)
}

func (s *PostgresStore) ListVerificationsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]core.VerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM verifications
		WHERE tenant_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()
	return scanVerifications(rows)
}

func scanVerifications(rows *sql.Rows) ([]core.VerificationRecord, error) {
	var out []core.VerificationRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		var rec core.VerificationRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode verification: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveThreat(ctx context.Context, rec *core.ThreatRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode threat: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threats (audit_id, tenant_id, session_id, ts, threat_level, body)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.AuditID, rec.TenantID, rec.SessionID, rec.Timestamp, rec.ThreatLevel, body)
	if isUniqueViolation(err) {
		return fmt.Errorf("audit %s: %w", rec.AuditID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("save threat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetThreat(ctx context.Context, tenantID, auditID string) (*core.ThreatRecord, error) {
	var ownerID string
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, body FROM threats WHERE audit_id = $1`, auditID).
		Scan(&ownerID, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get threat: %w", err)
	}
	if ownerID != tenantID {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrAccessDenied)
	}
	var rec core.ThreatRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode threat: %w", err)
	}
	return &rec, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateSession(ctx context.Context, sess *core.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, tenant_id, type, first_audit_id, latest_audit_id,
		                      attempt_count, initial_status, final_status, resolved,
		                      created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sess.ID, sess.TenantID, sess.Type, sess.FirstAuditID, sess.LatestAuditID,
		sess.AttemptCount, sess.InitialStatus, sess.FinalStatus, sess.Resolved,
		sess.CreatedAt, sess.ResolvedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("session %s: %w", sess.ID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*core.Session, error) {
	var sess core.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, type, first_audit_id, latest_audit_id,
		       attempt_count, initial_status, final_status, resolved,
		       created_at, resolved_at
		FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.TenantID, &sess.Type, &sess.FirstAuditID, &sess.LatestAuditID,
			&sess.AttemptCount, &sess.InitialStatus, &sess.FinalStatus, &sess.Resolved,
			&sess.CreatedAt, &sess.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// UpdateSession writes back under optimistic concurrency: the row must
// still carry expectedAttempts or the update is rejected with conflict.
func (s *PostgresStore) UpdateSession(ctx context.Context, sess *core.Session, expectedAttempts int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET type = $2, latest_audit_id = $3, attempt_count = $4,
		    final_status = $5, resolved = $6, resolved_at = $7
		WHERE id = $1 AND attempt_count = $8`,
		sess.ID, sess.Type, sess.LatestAuditID, sess.AttemptCount,
		sess.FinalStatus, sess.Resolved, sess.ResolvedAt, expectedAttempts)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s attempt count moved: %w", sess.ID, core.ErrConflict)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Quota counter
// ---------------------------------------------------------------------------

func (s *PostgresStore) IncrementUsage(ctx context.Context, tenantID string) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE tenants SET verifications_used = verifications_used + 1
		WHERE id = $1
		RETURNING verifications_used`, tenantID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) ResetUsage(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET verifications_used = 0 WHERE id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Knowledge base (pgvector)
// ---------------------------------------------------------------------------

func (s *PostgresStore) TenantHasChunks(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM kb_chunks WHERE tenant_id = $1)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SearchChunks(ctx context.Context, tenantID string, embedding []float32, topK int) ([]kb.ChunkHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, document_name, content, embedding <=> $2::vector AS distance
		FROM kb_chunks
		WHERE tenant_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3`, tenantID, vectorLiteral(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []kb.ChunkHit
	for rows.Next() {
		var hit kb.ChunkHit
		if err := rows.Scan(&hit.Chunk.ID, &hit.Chunk.TenantID,
			&hit.Chunk.DocumentName, &hit.Chunk.Content, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// vectorLiteral renders a pgvector input literal: [0.1,0.2,...].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
