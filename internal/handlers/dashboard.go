package handlers

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/middleware"
)

var dashboardPeriods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// HandleDashboard aggregates the tenant's verification activity over a
// window and compares it with the preceding window of the same length.
// GET /v1/dashboard?period=24h|7d|30d|90d
func HandleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := middleware.TenantFrom(r.Context())

		period := r.URL.Query().Get("period")
		if period == "" {
			period = "7d"
		}
		window, ok := dashboardPeriods[period]
		if !ok {
			writeError(w, fmt.Errorf("period must be one of 24h, 7d, 30d, 90d: %w", core.ErrValidation))
			return
		}

		now := time.Now().UTC()
		current, err := deps.Store.ListVerificationsBetween(r.Context(), tenant.ID, now.Add(-window), now)
		if err != nil {
			writeError(w, err)
			return
		}
		previous, err := deps.Store.ListVerificationsBetween(r.Context(), tenant.ID, now.Add(-2*window), now.Add(-window))
		if err != nil {
			writeError(w, err)
			return
		}

		stats := summarize(current)
		prevStats := summarize(previous)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"period":                period,
			"from":                  now.Add(-window).Format(time.RFC3339),
			"to":                    now.Format(time.RFC3339),
			"total_verifications":   stats.total,
			"status_counts":         stats.statusCounts,
			"average_trust_score":   stats.avgTrust,
			"compliance_rate":       stats.complianceRate,
			"human_review_count":    stats.humanReviews,
			"top_flags":             stats.topFlags,
			"trend":                 trend(stats, prevStats),
			"previous_period_total": prevStats.total,
		})
	}
}

type dashboardStats struct {
	total          int
	statusCounts   map[core.Status]int
	avgTrust       float64
	complianceRate float64
	humanReviews   int
	topFlags       []flagCount
}

type flagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

func summarize(records []core.VerificationRecord) dashboardStats {
	stats := dashboardStats{
		statusCounts: map[core.Status]int{
			core.StatusPass:  0,
			core.StatusFlag:  0,
			core.StatusBlock: 0,
		},
		topFlags: []flagCount{},
	}
	stats.total = len(records)
	if stats.total == 0 {
		return stats
	}

	trustSum := 0
	flagTotals := map[string]int{}
	for _, rec := range records {
		stats.statusCounts[rec.Status]++
		trustSum += rec.TrustScore
		if rec.HumanReviewRequired {
			stats.humanReviews++
		}
		for _, f := range rec.Flags {
			flagTotals[f]++
		}
	}

	stats.avgTrust = round1(float64(trustSum) / float64(stats.total))
	stats.complianceRate = round1(float64(stats.statusCounts[core.StatusPass]) / float64(stats.total) * 100)

	for flag, count := range flagTotals {
		stats.topFlags = append(stats.topFlags, flagCount{Flag: flag, Count: count})
	}
	sort.Slice(stats.topFlags, func(i, j int) bool {
		if stats.topFlags[i].Count != stats.topFlags[j].Count {
			return stats.topFlags[i].Count > stats.topFlags[j].Count
		}
		return stats.topFlags[i].Flag < stats.topFlags[j].Flag
	})
	if len(stats.topFlags) > 5 {
		stats.topFlags = stats.topFlags[:5]
	}
	return stats
}

// trend compares compliance rates between the windows; movements within
// 5 percentage points read as stable. An empty prior window gives no
// baseline to compare against.
func trend(current, previous dashboardStats) string {
	if previous.total == 0 {
		return "stable"
	}
	delta := current.complianceRate - previous.complianceRate
	switch {
	case delta > 5:
		return "improving"
	case delta < -5:
		return "declining"
	default:
		return "stable"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
