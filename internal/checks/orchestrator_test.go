package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
)

func TestSelectChecks_UnionInFusionOrder(t *testing.T) {
	pol := &core.Policy{
		RequiredChecks: []core.CheckName{core.CheckSemanticEntropy, core.CheckEntailment},
	}
	selected := SelectChecks(pol, []string{"numerical_verify", "not_a_check"})

	assert.Equal(t, []core.CheckName{
		core.CheckEntailment,
		core.CheckNumerical,
		core.CheckSemanticEntropy,
	}, selected)
}

func TestSelectChecks_DeduplicatesRequested(t *testing.T) {
	pol := &core.Policy{RequiredChecks: []core.CheckName{core.CheckEntailment}}
	selected := SelectChecks(pol, []string{"entailment", "entailment"})
	assert.Equal(t, []core.CheckName{core.CheckEntailment}, selected)
}

func TestFuse_EmptyResultsIsNeutral(t *testing.T) {
	assert.Equal(t, 50, Fuse(nil))
}

func TestFuse_SingleCheckScalesToPercent(t *testing.T) {
	results := map[core.CheckName]core.CheckResult{
		core.CheckEntailment: {Score: 0.8},
	}
	assert.Equal(t, 80, Fuse(results))
}

func TestFuse_NormalizesOverRealizedWeights(t *testing.T) {
	// entailment 1.0 at weight .30, claims 0.0 at weight .15:
	// 100 * 0.30 / 0.45 = 66.67 -> 67.
	results := map[core.CheckName]core.CheckResult{
		core.CheckEntailment: {Score: 1.0},
		core.CheckClaims:     {Score: 0.0},
	}
	assert.Equal(t, 67, Fuse(results))
}

func TestFuse_DisabledCheckDoesNotDeflate(t *testing.T) {
	all := map[core.CheckName]core.CheckResult{}
	for _, name := range core.SupportedChecks {
		all[name] = core.CheckResult{Score: 0.9}
	}
	two := map[core.CheckName]core.CheckResult{
		core.CheckEntailment: {Score: 0.9},
		core.CheckClaims:     {Score: 0.9},
	}
	assert.Equal(t, Fuse(all), Fuse(two))
}

func TestStatusFor_Thresholds(t *testing.T) {
	assert.Equal(t, core.StatusPass, StatusFor(85, 85, 40))
	assert.Equal(t, core.StatusFlag, StatusFor(84, 85, 40))
	assert.Equal(t, core.StatusFlag, StatusFor(40, 85, 40))
	assert.Equal(t, core.StatusBlock, StatusFor(39, 85, 40))
}

func TestRecommendations_OnlyFlaggedChecks(t *testing.T) {
	results := map[core.CheckName]core.CheckResult{
		core.CheckEntailment: {Score: 0.3, Flags: []string{"low_entailment"}, Detail: "weak support"},
		core.CheckClaims:     {Score: 1.0, Detail: "all verified"},
	}
	recs := Recommendations(results)
	require.Len(t, recs, 1)
	assert.Equal(t, "entailment: weak support", recs[0])
}

func TestCollectFlags_StableOrder(t *testing.T) {
	results := map[core.CheckName]core.CheckResult{
		core.CheckClaims:     {Flags: []string{"unverified_claims"}},
		core.CheckEntailment: {Flags: []string{"low_entailment"}},
	}
	assert.Equal(t, []string{"low_entailment", "unverified_claims"}, CollectFlags(results))
}
