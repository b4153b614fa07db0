package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
)

func TestResolve_FallsBackToBuiltinDefault(t *testing.T) {
	svc := NewService(database.NewMemoryStore(), nil)

	pol, err := svc.Resolve(context.Background(), "ten_a", "", core.DomainHealthcare)
	require.NoError(t, err)
	assert.Equal(t, core.DomainHealthcare, pol.Domain)
	assert.Equal(t, 85, pol.AutoApproveThreshold)
	assert.Equal(t, 40, pol.AutoBlockThreshold)
	assert.Equal(t, 3, pol.MaxRetries)
}

func TestResolve_ExplicitConfigMissingIsNotFound(t *testing.T) {
	svc := NewService(database.NewMemoryStore(), nil)

	_, err := svc.Resolve(context.Background(), "ten_a", "cfg_missing", core.DomainGeneral)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSaveThenResolve_ReturnsSavedPolicy(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	p := core.DefaultPolicy("ten_a", core.DomainLegal)
	p.AutoApproveThreshold = 90
	require.NoError(t, svc.Save(ctx, p))
	assert.NotEmpty(t, p.ConfigID)

	byID, err := svc.Resolve(ctx, "ten_a", p.ConfigID, core.DomainGeneral)
	require.NoError(t, err)
	assert.Equal(t, 90, byID.AutoApproveThreshold)

	// Saving also makes it the tenant default.
	byDefault, err := svc.Resolve(ctx, "ten_a", "", core.DomainGeneral)
	require.NoError(t, err)
	assert.Equal(t, p.ConfigID, byDefault.ConfigID)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *core.Policy { return core.DefaultPolicy("ten_a", core.DomainGeneral) }

	cases := []struct {
		name   string
		mutate func(*core.Policy)
	}{
		{"approve above 100", func(p *core.Policy) { p.AutoApproveThreshold = 101 }},
		{"block below 0", func(p *core.Policy) { p.AutoBlockThreshold = -1 }},
		{"approve not above block", func(p *core.Policy) { p.AutoApproveThreshold = 40; p.AutoBlockThreshold = 40 }},
		{"unknown required check", func(p *core.Policy) { p.RequiredChecks = []core.CheckName{"sentiment"} }},
		{"unknown optional check", func(p *core.Policy) { p.OptionalChecks = []core.CheckName{"vibes"} }},
		{"kb relevance out of range", func(p *core.Policy) { p.KBMinRelevance = 1.5 }},
		{"kb top k out of range", func(p *core.Policy) { p.KBTopK = 51 }},
		{"retries out of range", func(p *core.Policy) { p.MaxRetries = 11 }},
		{"unknown domain", func(p *core.Policy) { p.Domain = "astrology" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			tc.mutate(p)
			assert.ErrorIs(t, Validate(p), core.ErrValidation)
		})
	}

	assert.NoError(t, Validate(base()))
}

func TestMonthlyLimit_OnlyStarterIsMetered(t *testing.T) {
	assert.Equal(t, int64(1000), MonthlyLimit(core.PlanStarter))
	assert.Equal(t, int64(0), MonthlyLimit(core.PlanProfessional))
	assert.Equal(t, int64(0), MonthlyLimit(core.PlanEnterprise))
}

func TestRateLimit_PerPlan(t *testing.T) {
	assert.Equal(t, 100, RateLimit(core.PlanStarter))
	assert.Equal(t, 1000, RateLimit(core.PlanProfessional))
	assert.Equal(t, 10000, RateLimit(core.PlanEnterprise))
}

func TestCheckQuota_StarterAtCap(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	under := &core.Tenant{ID: "ten_a", Plan: core.PlanStarter, VerificationsUsed: 999}
	assert.NoError(t, CheckQuota(under, now))

	at := &core.Tenant{ID: "ten_a", Plan: core.PlanStarter, VerificationsUsed: 1000}
	err := CheckQuota(at, now)
	require.Error(t, err)

	var qe *core.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, int64(1000), qe.Limit)
	assert.Equal(t, int64(1000), qe.Used)
	assert.Equal(t, "2026-09-01T00:00:00Z", qe.ResetsAt)
	assert.Equal(t, upgradeURL, qe.UpgradeURL)
}

func TestCheckQuota_UnmeteredPlansNeverDeny(t *testing.T) {
	now := time.Now().UTC()
	ent := &core.Tenant{ID: "ten_a", Plan: core.PlanEnterprise, VerificationsUsed: 5_000_000}
	assert.NoError(t, CheckQuota(ent, now))
}

func TestNextReset_FirstOfNextMonthUTC(t *testing.T) {
	got := NextReset(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestUsageFor_WarnsFromEightyPercent(t *testing.T) {
	u := UsageFor(core.PlanStarter, 799)
	assert.Equal(t, int64(201), u.Remaining)
	assert.Zero(t, u.WarnPct)

	u = UsageFor(core.PlanStarter, 800)
	assert.Equal(t, 80, u.WarnPct)

	u = UsageFor(core.PlanStarter, 1200)
	assert.Equal(t, int64(0), u.Remaining, "remaining never goes negative")
	assert.Equal(t, 120, u.WarnPct)

	u = UsageFor(core.PlanEnterprise, 123)
	assert.Equal(t, int64(-1), u.Remaining, "unmetered plans report -1")
	assert.Zero(t, u.WarnPct)
}

func TestRecordUsage_IncrementsCounter(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	ten := &core.Tenant{ID: "ten_a", Plan: core.PlanStarter}
	require.NoError(t, store.CreateTenant(ctx, ten))

	u, err := svc.RecordUsage(ctx, ten)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Used)
	assert.Equal(t, int64(999), u.Remaining)

	u, err = svc.RecordUsage(ctx, ten)
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Used)
}
