package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
)

func TestBuild_PassNeedsNoRemediation(t *testing.T) {
	rem := Build(BuildInput{Status: core.StatusPass, Domain: core.DomainGeneral})
	assert.Nil(t, rem)
}

func TestBuild_HealthcareDoseDiscrepancyForcesReview(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusFlag,
		Domain: core.DomainHealthcare,
		Corrections: []core.Correction{{
			Type:                   core.CorrectionNumericalDistortion,
			Check:                  core.CheckNumerical,
			Found:                  "100mg",
			Expected:               "50mg",
			Subtype:                "discrepancy",
			Severity:               core.SeverityHigh,
			RequiresClinicalReview: true,
		}},
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionHumanReview, rem.SuggestedAction)
	assert.Contains(t, rem.Message, "medication discrepancy")
	assert.Contains(t, rem.AgentInstruction, "human clinical reviewer")
	assert.Contains(t, rem.AgentInstruction, "verify with prescriber")
	assert.NotContains(t, rem.AgentInstruction, "Use the exact source value",
		"dose discrepancies must never be auto-corrected")
}

func TestBuild_DoseDiscrepancyOutsideHealthcareIsNotClinical(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusBlock,
		Domain: core.DomainFinancial,
		Corrections: []core.Correction{{
			Type:     core.CorrectionNumericalDistortion,
			Check:    core.CheckNumerical,
			Found:    "$847M",
			Expected: "$782.3M",
			Subtype:  "discrepancy",
			Severity: core.SeverityCritical,
		}},
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionRetryWithCorrection, rem.SuggestedAction)
	assert.Contains(t, rem.AgentInstruction, "Use the exact source value")
}

func TestBuild_MedicationClaimTriggersClinicalGate(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusFlag,
		Domain: core.DomainHealthcare,
		Corrections: []core.Correction{{
			Type:     core.CorrectionFabricatedClaim,
			Check:    core.CheckClaims,
			Text:     "metoprolol 25mg added to the regimen",
			Severity: core.SeverityMedium,
		}},
		Mode: core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionHumanReview, rem.SuggestedAction)
}

func TestBuild_RetryCapReachedForcesReview(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusBlock,
		Domain: core.DomainLegal,
		Corrections: []core.Correction{{
			Type:     core.CorrectionSourceContradiction,
			Check:    core.CheckClaims,
			Found:    "30 days",
			Expected: "60 days",
			Severity: core.SeverityHigh,
		}},
		Attempt:    3,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionHumanReview, rem.SuggestedAction)
	assert.Contains(t, rem.Message, "Maximum retry attempts reached")
}

func TestBuild_BlockWithCorrectionsRetries(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusBlock,
		Domain: core.DomainLegal,
		Corrections: []core.Correction{{
			Type:     core.CorrectionSourceContradiction,
			Check:    core.CheckClaims,
			Found:    "30 days",
			Expected: "60 days",
			Severity: core.SeverityHigh,
		}},
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionRetryWithCorrection, rem.SuggestedAction)
	assert.Contains(t, rem.Message, "1 correction(s) required")
	assert.Contains(t, rem.AgentInstruction, "same session_id")
	assert.Contains(t, rem.AgentInstruction, `"30 days"`)
	assert.Contains(t, rem.AgentInstruction, `"60 days"`)
}

func TestBuild_BlockWithoutCorrectionsAborts(t *testing.T) {
	rem := Build(BuildInput{
		Status:     core.StatusBlock,
		Domain:     core.DomainGeneral,
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionAbort, rem.SuggestedAction)
}

func TestBuild_LowSeverityFlagProceedsWithWarning(t *testing.T) {
	rem := Build(BuildInput{
		Status: core.StatusFlag,
		Domain: core.DomainGeneral,
		Corrections: []core.Correction{{
			Type:     core.CorrectionBias,
			Check:    core.CheckPreference,
			Text:     "mild directional language",
			Severity: core.SeverityMedium,
		}},
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeGrounded,
	})

	require.NotNil(t, rem)
	assert.Equal(t, core.ActionProceedWithWarning, rem.SuggestedAction)
	assert.Contains(t, rem.AgentInstruction, "neutral language")
}

func TestBuild_SelfConsistencyModePrependsWarning(t *testing.T) {
	rem := Build(BuildInput{
		Status:     core.StatusFlag,
		Domain:     core.DomainGeneral,
		Attempt:    1,
		MaxRetries: 3,
		Mode:       core.ModeSelfConsistency,
	})

	require.NotNil(t, rem)
	assert.Contains(t, rem.Message, "Limited verification: no source context provided.")
}
