package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
)

// All adapters run heuristic-only when no service URL is configured. The
// noise source stays nil so scores are exact.

func TestEntropyHeuristic_SpecificFactsScoreConfident(t *testing.T) {
	check := NewEntropyCheck(nil, "", nil)
	res := check.Run(context.Background(), Input{
		Output: "The agreement requires a 30-day notice period, specifies a fee of $5,000, and contains a 2.5% penalty under Section 4.",
	})

	assert.InDelta(t, 0.9, res.Score, 0.001)
	assert.Contains(t, res.Flags, "entropy_unavailable")
	assert.NotContains(t, res.Flags, "high_uncertainty")
	assert.NotContains(t, res.Flags, "moderate_uncertainty")
}

func TestEntropyHeuristic_HedgedTextScoresLow(t *testing.T) {
	check := NewEntropyCheck(nil, "", nil)
	res := check.Run(context.Background(), Input{
		Output: "It is unclear whether the clause might apply. Perhaps the terms could possibly be uncertain, and it seems the outcome may arguably be unlikely.",
	})

	assert.Less(t, res.Score, 0.35)
	assert.Contains(t, res.Flags, "high_uncertainty")
	assert.Contains(t, res.Flags, "entropy_unavailable")
}

func TestEntropyHeuristic_FlagsSelfContradiction(t *testing.T) {
	check := NewEntropyCheck(nil, "", nil)
	res := check.Run(context.Background(), Input{
		Output: "On the one hand the fee is fixed, but on the other hand it escalates.",
	})

	assert.Contains(t, res.Flags, "self_contradicting")
}

func TestPreferenceHeuristic_LoadedLanguageIsStrongBias(t *testing.T) {
	check := NewPreferenceCheck(nil, "", nil)
	res := check.Run(context.Background(), Input{
		Output: "These are unacceptable terms and you must reject this outrageous clause. We strongly advise against signing.",
	})

	assert.InDelta(t, 0.0, res.Score, 0.001)
	assert.Contains(t, res.Flags, "strong_bias")
	assert.Contains(t, res.Flags, "preference_unavailable")
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, core.CorrectionBias, res.Corrections[0].Type)
}

func TestPreferenceHeuristic_NeutralLanguagePasses(t *testing.T) {
	check := NewPreferenceCheck(nil, "", nil)
	res := check.Run(context.Background(), Input{
		Output: "According to the agreement, both parties retain standard termination rights, and either party may provide notice.",
	})

	assert.GreaterOrEqual(t, res.Score, 0.75)
	assert.NotContains(t, res.Flags, "strong_bias")
	assert.NotContains(t, res.Flags, "mild_preference")
	assert.Empty(t, res.Corrections)
}

func TestClaimsHeuristic_ContradictedAndUnverified(t *testing.T) {
	check := NewClaimsCheck(nil, "", "")
	res := check.Run(context.Background(), Input{
		Output:  "The notice period is 30 days, the penalty is $5,000, and Section 9 governs disputes.",
		Context: "Notice must be given 60 days in advance. The penalty is $1,000.",
	})

	assert.InDelta(t, 0.0, res.Score, 0.001)
	assert.Contains(t, res.Flags, "unverified_claims")
	assert.Contains(t, res.Flags, "claims_unavailable")

	require.NotNil(t, res.Claims)
	assert.Equal(t, 3, res.Claims.Total)
	assert.Equal(t, 0, res.Claims.Verified)
	assert.Equal(t, 1, res.Claims.Unverified)

	contradictions := 0
	for _, c := range res.Corrections {
		if c.Type == core.CorrectionSourceContradiction {
			contradictions++
		}
	}
	assert.Equal(t, 2, contradictions, "30 days vs 60 days and $5,000 vs $1,000")
}

func TestClaimsHeuristic_VerifiedClaimScoresFull(t *testing.T) {
	check := NewClaimsCheck(nil, "", "")
	res := check.Run(context.Background(), Input{
		Output:  "The notice period is 30 days.",
		Context: "Either party may terminate with 30 days written notice.",
	})

	assert.InDelta(t, 1.0, res.Score, 0.001)
	assert.Empty(t, res.Corrections)
	require.NotNil(t, res.Claims)
	assert.Equal(t, 1, res.Claims.Verified)
}

func TestClaimsHeuristic_NoMinableClaims(t *testing.T) {
	check := NewClaimsCheck(nil, "", "")
	res := check.Run(context.Background(), Input{
		Output:  "The summary reads well and covers the main points.",
		Context: "Full text of the source document.",
	})

	assert.InDelta(t, 0.7, res.Score, 0.001)
	assert.Contains(t, res.Flags, "claims_unavailable")
}

func TestClaimsCheck_NoContext(t *testing.T) {
	check := NewClaimsCheck(nil, "", "")
	res := check.Run(context.Background(), Input{Output: "The fee is $100."})

	assert.InDelta(t, 0.5, res.Score, 0.001)
	assert.Contains(t, res.Flags, "no_context_provided")
}

func TestEntailmentHeuristic_GroundedSentence(t *testing.T) {
	check := NewEntailmentCheck(nil, "")
	res := check.Run(context.Background(), Input{
		Output:  "The patient tolerated the procedure without complications.",
		Context: "The patient tolerated the procedure without complications and was discharged the next morning.",
	})

	assert.InDelta(t, 1.0, res.Score, 0.001)
	assert.Contains(t, res.Flags, "entailment_unavailable")
	assert.NotContains(t, res.Flags, "low_entailment")
}

func TestEntailmentHeuristic_UngroundedSentence(t *testing.T) {
	check := NewEntailmentCheck(nil, "")
	res := check.Run(context.Background(), Input{
		Output:  "Quarterly revenue exceeded analyst projections significantly.",
		Context: "The patient was discharged home in stable condition.",
	})

	assert.Less(t, res.Score, 0.5)
	assert.Contains(t, res.Flags, "low_entailment")
	assert.Contains(t, res.Flags, "entailment_unavailable")
}

func TestEntailmentCheck_NoContext(t *testing.T) {
	check := NewEntailmentCheck(nil, "")
	res := check.Run(context.Background(), Input{Output: "Anything at all."})

	assert.InDelta(t, 0.5, res.Score, 0.001)
	assert.Contains(t, res.Flags, "no_context_provided")
}
