package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
)

const upgradeURL = "https://meerkat.ai/billing/upgrade"

// MonthlyLimit returns the per-period verification cap; 0 means
// unmetered.
func MonthlyLimit(plan core.Plan) int64 {
	if plan == core.PlanStarter {
		return 1000
	}
	return 0
}

// RateLimit returns the per-minute request budget for a plan.
func RateLimit(plan core.Plan) int {
	switch plan {
	case core.PlanProfessional:
		return 1000
	case core.PlanEnterprise:
		return 10000
	default:
		return 100
	}
}

// NextReset is the UTC first-of-next-month boundary.
func NextReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// CheckQuota rejects the call when the tenant's monthly cap is already
// spent. Read-before, count-after: the counter only moves once the
// verdict is persisted.
func CheckQuota(t *core.Tenant, now time.Time) error {
	limit := MonthlyLimit(t.Plan)
	if limit == 0 || t.VerificationsUsed < limit {
		return nil
	}
	return &core.QuotaError{
		Plan:       t.Plan,
		Limit:      limit,
		Used:       t.VerificationsUsed,
		ResetsAt:   NextReset(now).Format(time.RFC3339),
		UpgradeURL: upgradeURL,
	}
}

// Usage is what the X-Meerkat-* headers carry.
type Usage struct {
	Used      int64
	Limit     int64 // 0 = unmetered
	Remaining int64 // -1 = unmetered
	WarnPct   int   // 0 unless used >= 80% of limit
}

// RecordUsage atomically increments the tenant counter and reports the
// post-increment usage.
func (s *Service) RecordUsage(ctx context.Context, t *core.Tenant) (Usage, error) {
	used, err := s.store.IncrementUsage(ctx, t.ID)
	if err != nil {
		return Usage{}, fmt.Errorf("record usage: %w", err)
	}
	return UsageFor(t.Plan, used), nil
}

// UsageFor derives the header values for a usage level.
func UsageFor(plan core.Plan, used int64) Usage {
	u := Usage{Used: used, Limit: MonthlyLimit(plan), Remaining: -1}
	if u.Limit > 0 {
		u.Remaining = u.Limit - used
		if u.Remaining < 0 {
			u.Remaining = 0
		}
		if pct := used * 100 / u.Limit; pct >= 80 {
			u.WarnPct = int(pct)
		}
	}
	return u
}
