package database

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/kb"
)

// MemoryStore implements Store in process memory. Used by tests and as
// the fallback when no DATABASE_URL is configured.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]*core.Tenant
	credentials   map[string]*core.Credential // by id
	credByHash    map[string]string           // hash -> id
	policies      map[string]*core.Policy     // by config id
	defaultPolicy map[string]string           // tenant id -> config id
	verifications map[string]*core.VerificationRecord
	threats       map[string]*core.ThreatRecord
	sessions      map[string]*core.Session
	chunks        map[string][]core.KBChunk // by tenant id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]*core.Tenant),
		credentials:   make(map[string]*core.Credential),
		credByHash:    make(map[string]string),
		policies:      make(map[string]*core.Policy),
		defaultPolicy: make(map[string]string),
		verifications: make(map[string]*core.VerificationRecord),
		threats:       make(map[string]*core.ThreatRecord),
		sessions:      make(map[string]*core.Session),
		chunks:        make(map[string][]core.KBChunk),
	}
}

func (m *MemoryStore) CreateTenant(_ context.Context, t *core.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tenants[t.ID]; exists {
		return fmt.Errorf("tenant %s: %w", t.ID, core.ErrConflict)
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*core.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, core.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateCredential(_ context.Context, c *core.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.credentials[c.ID] = &cp
	m.credByHash[c.KeyHash] = c.ID
	return nil
}

func (m *MemoryStore) GetCredentialByHash(_ context.Context, keyHash string) (*core.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.credByHash[keyHash]
	if !ok {
		return nil, fmt.Errorf("credential: %w", core.ErrNotFound)
	}
	cp := *m.credentials[id]
	return &cp, nil
}

func (m *MemoryStore) TouchCredential(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, core.ErrNotFound)
	}
	c.LastUsedAt = &at
	return nil
}

func (m *MemoryStore) SavePolicy(_ context.Context, p *core.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.policies[p.ConfigID] = &cp
	m.defaultPolicy[p.TenantID] = p.ConfigID
	return nil
}

func (m *MemoryStore) GetPolicy(_ context.Context, tenantID, configID string) (*core.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if configID == "" {
		id, ok := m.defaultPolicy[tenantID]
		if !ok {
			return nil, fmt.Errorf("default policy for %s: %w", tenantID, core.ErrNotFound)
		}
		configID = id
	}
	p, ok := m.policies[configID]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("policy %s: %w", configID, core.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) SaveVerification(_ context.Context, rec *core.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.verifications[rec.AuditID]; exists {
		return fmt.Errorf("audit %s: %w", rec.AuditID, core.ErrConflict)
	}
	cp := *rec
	m.verifications[rec.AuditID] = &cp
	return nil
}

func (m *MemoryStore) GetVerification(_ context.Context, tenantID, auditID string) (*core.VerificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.verifications[auditID]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrNotFound)
	}
	if rec.TenantID != tenantID {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrAccessDenied)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListSessionVerifications(_ context.Context, tenantID, sessionID string) ([]core.VerificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.VerificationRecord
	for _, rec := range m.verifications {
		if rec.TenantID == tenantID && rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (m *MemoryStore) ListVerificationsBetween(_ context.Context, tenantID string, from, to time.Time) ([]core.VerificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.VerificationRecord
	for _, rec := range m.verifications {
		if rec.TenantID == tenantID && !rec.Timestamp.Before(from) && rec.Timestamp.Before(to) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) SaveThreat(_ context.Context, rec *core.ThreatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.threats[rec.AuditID]; exists {
		return fmt.Errorf("audit %s: %w", rec.AuditID, core.ErrConflict)
	}
	cp := *rec
	m.threats[rec.AuditID] = &cp
	return nil
}

func (m *MemoryStore) GetThreat(_ context.Context, tenantID, auditID string) (*core.ThreatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.threats[auditID]
	if !ok {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrNotFound)
	}
	if rec.TenantID != tenantID {
		return nil, fmt.Errorf("audit %s: %w", auditID, core.ErrAccessDenied)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s: %w", s.ID, core.ErrConflict)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *core.Session, expectedAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", s.ID, core.ErrNotFound)
	}
	if cur.AttemptCount != expectedAttempts {
		return fmt.Errorf("session %s attempt count moved: %w", s.ID, core.ErrConflict)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, core.ErrNotFound)
	}
	t.VerificationsUsed++
	return t.VerificationsUsed, nil
}

func (m *MemoryStore) ResetUsage(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, core.ErrNotFound)
	}
	t.VerificationsUsed = 0
	return nil
}

// AddChunk indexes a chunk for tests and local runs.
func (m *MemoryStore) AddChunk(c core.KBChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.TenantID] = append(m.chunks[c.TenantID], c)
}

func (m *MemoryStore) TenantHasChunks(_ context.Context, tenantID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[tenantID]) > 0, nil
}

func (m *MemoryStore) SearchChunks(_ context.Context, tenantID string, embedding []float32, topK int) ([]kb.ChunkHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []kb.ChunkHit
	for _, c := range m.chunks[tenantID] {
		hits = append(hits, kb.ChunkHit{Chunk: c, Distance: cosineDistance(embedding, c.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1.0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
