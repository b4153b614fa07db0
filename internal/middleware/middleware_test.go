package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
)

func seedTenant(t *testing.T, store *database.MemoryStore, key string, plan core.Plan) *core.Tenant {
	t.Helper()
	ctx := context.Background()
	tenant := &core.Tenant{ID: "ten_a", Name: "Acme", Plan: plan, Domain: core.DomainGeneral}
	require.NoError(t, store.CreateTenant(ctx, tenant))
	require.NoError(t, store.CreateCredential(ctx, &core.Credential{
		ID:       core.NewCredentialID(),
		TenantID: tenant.ID,
		KeyHash:  HashKey(key),
		Active:   true,
	}))
	return tenant
}

func TestAuth_MissingKey(t *testing.T) {
	h := Auth(database.NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/verify", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")
}

func TestAuth_UnknownKey(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "mk_live_good", core.PlanStarter)

	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a wrong key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
	req.Header.Set("Authorization", "Bearer mk_live_wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown API key")
}

func TestAuth_BearerInjectsTenant(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "mk_live_good", core.PlanProfessional)

	var seen *core.Tenant
	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TenantFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
	req.Header.Set("Authorization", "Bearer mk_live_good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "ten_a", seen.ID)
	assert.Equal(t, core.PlanProfessional, seen.Plan)
}

func TestAuth_HeaderFallback(t *testing.T) {
	store := database.NewMemoryStore()
	seedTenant(t, store, "mk_live_good", core.PlanStarter)

	var seen *core.Tenant
	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TenantFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
	req.Header.Set("x-meerkat-key", "mk_live_good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
}

func TestAuth_RevokedCredential(t *testing.T) {
	store := database.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateTenant(ctx, &core.Tenant{ID: "ten_a", Plan: core.PlanStarter}))
	require.NoError(t, store.CreateCredential(ctx, &core.Credential{
		ID:       core.NewCredentialID(),
		TenantID: "ten_a",
		KeyHash:  HashKey("mk_live_revoked"),
		Active:   false,
	}))

	h := Auth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a revoked key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
	req.Header.Set("Authorization", "Bearer mk_live_revoked")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHashKey_StableHex(t *testing.T) {
	a := HashKey("mk_live_abc")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey("mk_live_abc"))
	assert.NotEqual(t, a, HashKey("mk_live_abd"))
}

func TestRateLimiter_ExhaustsThenDenies(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		allowed, limit, _ := rl.Allow("ten_a", core.PlanStarter)
		require.True(t, allowed, "request %d within the minute budget", i+1)
		assert.Equal(t, 100, limit)
	}
	allowed, _, remaining := rl.Allow("ten_a", core.PlanStarter)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_TenantsAreIsolated(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		rl.Allow("ten_a", core.PlanStarter)
	}
	allowed, _, _ := rl.Allow("ten_a", core.PlanStarter)
	require.False(t, allowed)

	allowed, _, _ = rl.Allow("ten_b", core.PlanStarter)
	assert.True(t, allowed, "another tenant's bucket is untouched")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	tenant := &core.Tenant{ID: "ten_a", Plan: core.PlanStarter}
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
		req = req.WithContext(WithTenant(req.Context(), tenant))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))

	for i := 0; i < 99; i++ {
		send()
	}
	rec = send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestTenantFrom_NilOutsideAuth(t *testing.T) {
	assert.Nil(t, TenantFrom(context.Background()))
}
