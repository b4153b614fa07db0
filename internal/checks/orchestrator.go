package checks

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
)

// Weights for trust-score fusion. Normalized at fusion time over the
// checks that actually ran, so a disabled check never deflates scores.
var Weights = map[core.CheckName]float64{
	core.CheckEntailment:      0.30,
	core.CheckNumerical:       0.20,
	core.CheckSemanticEntropy: 0.20,
	core.CheckPreference:      0.15,
	core.CheckClaims:          0.15,
}

// Panel holds one adapter per supported check.
type Panel struct {
	checkers map[core.CheckName]Checker

	// Observe, when set, receives the wall time of every check run.
	Observe func(name core.CheckName, seconds float64)
}

// NewPanel wires the five adapters. rng feeds the heuristic noise;
// tests pass a seeded source.
func NewPanel(client *Client, urls ServiceURLs, rng *rand.Rand) *Panel {
	noise := newNoiseSource(rng)
	return &Panel{checkers: map[core.CheckName]Checker{
		core.CheckEntailment:      NewEntailmentCheck(client, urls.NLI),
		core.CheckSemanticEntropy: NewEntropyCheck(client, urls.Entropy, noise),
		core.CheckPreference:      NewPreferenceCheck(client, urls.Preference, noise),
		core.CheckClaims:          NewClaimsCheck(client, urls.Claims, urls.NLI),
		core.CheckNumerical:       NewNumericalCheck(client, urls.Numerical),
	}}
}

// SelectChecks is the union of the policy's required checks and the
// caller's requested ones, intersected with the supported set.
func SelectChecks(policy *core.Policy, requested []string) []core.CheckName {
	set := make(map[core.CheckName]bool)
	for _, c := range policy.RequiredChecks {
		if core.ValidCheck(string(c)) {
			set[c] = true
		}
	}
	for _, r := range requested {
		if core.ValidCheck(r) {
			set[core.CheckName(r)] = true
		}
	}
	// Stable fusion-weight order for responses and audit rows.
	var out []core.CheckName
	for _, c := range core.SupportedChecks {
		if set[c] {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate runs the named checks in parallel and collects results.
// Adapters never fail; cancellation is the only way to get partial
// results, and then the caller aborts anyway.
func (p *Panel) Evaluate(ctx context.Context, in Input, names []core.CheckName) map[core.CheckName]core.CheckResult {
	results := make(map[core.CheckName]core.CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		checker, ok := p.checkers[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name core.CheckName, checker Checker) {
			defer wg.Done()
			start := time.Now()
			res := checker.Run(ctx, in)
			if p.Observe != nil {
				p.Observe(name, time.Since(start).Seconds())
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return results
}

// Fuse computes the weighted 0-100 trust score over the realized
// weight sum.
func Fuse(results map[core.CheckName]core.CheckResult) int {
	if len(results) == 0 {
		return 50
	}
	var weightedSum, totalWeight float64
	for name, res := range results {
		w, ok := Weights[name]
		if !ok {
			w = 0.25
		}
		weightedSum += res.Score * w
		totalWeight += w
	}
	return int(math.Round(100 * weightedSum / math.Max(totalWeight, 0.01)))
}

// StatusFor maps a trust score to the governance decision.
func StatusFor(trust, approveThreshold, blockThreshold int) core.Status {
	switch {
	case trust >= approveThreshold:
		return core.StatusPass
	case trust >= blockThreshold:
		return core.StatusFlag
	default:
		return core.StatusBlock
	}
}

// CollectFlags flattens check flags in stable check order.
func CollectFlags(results map[core.CheckName]core.CheckResult) []string {
	var flags []string
	for _, name := range orderedNames(results) {
		flags = append(flags, results[name].Flags...)
	}
	return flags
}

// CollectCorrections merges check corrections in stable check order.
func CollectCorrections(results map[core.CheckName]core.CheckResult) []core.Correction {
	var corrections []core.Correction
	for _, name := range orderedNames(results) {
		corrections = append(corrections, results[name].Corrections...)
	}
	return corrections
}

// Recommendations lists "check: detail" for every check that raised
// flags.
func Recommendations(results map[core.CheckName]core.CheckResult) []string {
	var recs []string
	for _, name := range orderedNames(results) {
		if res := results[name]; len(res.Flags) > 0 {
			recs = append(recs, fmt.Sprintf("%s: %s", name, res.Detail))
		}
	}
	return recs
}

func orderedNames(results map[core.CheckName]core.CheckResult) []core.CheckName {
	names := make([]core.CheckName, 0, len(results))
	for _, c := range core.SupportedChecks {
		if _, ok := results[c]; ok {
			names = append(names, c)
		}
	}
	if len(names) < len(results) {
		// Unknown check names sort last, alphabetically.
		var extra []string
		for name := range results {
			known := false
			for _, c := range core.SupportedChecks {
				if name == c {
					known = true
					break
				}
			}
			if !known {
				extra = append(extra, string(name))
			}
		}
		sort.Strings(extra)
		for _, e := range extra {
			names = append(names, core.CheckName(e))
		}
	}
	return names
}
