// Package remediation turns a verdict and its corrections into the
// agent-executable bundle: message, instruction text, and suggested
// action, with the healthcare dose-discrepancy override.
package remediation

import (
	"fmt"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

// BuildInput is everything action selection depends on.
type BuildInput struct {
	Status      core.Status
	Domain      core.Domain
	Corrections []core.Correction
	Attempt     int
	MaxRetries  int
	Mode        core.VerificationMode
}

// Medication keywords that pull claim corrections into the clinical
// review gate.
var medicationKeywords = []string{
	"mg", "mcg", "ml", "units", "iu", "meq", "dose", "medication",
}

const selfConsistencyWarning = "Limited verification: no source context provided. " +
	"Connect a knowledge base for full grounded verification."

// Build returns nil for PASS, otherwise the remediation bundle.
func Build(in BuildInput) *core.Remediation {
	if in.Status == core.StatusPass {
		return nil
	}

	clinical := in.Domain == core.DomainHealthcare && hasClinicalGate(in.Corrections)
	action := selectAction(in, clinical)

	message := buildMessage(in, action, clinical)
	if in.Mode == core.ModeSelfConsistency {
		message = selfConsistencyWarning + " " + message
	}

	return &core.Remediation{
		Message:          message,
		AgentInstruction: buildInstruction(in, action, clinical),
		Corrections:      in.Corrections,
		SuggestedAction:  action,
	}
}

// hasClinicalGate reports whether any correction must be routed to a
// clinician: an explicit review tag, a dose-range discrepancy, or a
// claim correction mentioning medication terms.
func hasClinicalGate(corrections []core.Correction) bool {
	for _, c := range corrections {
		if c.RequiresClinicalReview {
			return true
		}
		if c.Subtype == "discrepancy" {
			return true
		}
		if c.Check == core.CheckClaims && mentionsMedication(c.Text) {
			return true
		}
	}
	return false
}

func mentionsMedication(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range medicationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func selectAction(in BuildInput, clinical bool) core.SuggestedAction {
	if clinical {
		return core.ActionHumanReview
	}
	if in.MaxRetries > 0 && in.Attempt >= in.MaxRetries {
		return core.ActionHumanReview
	}
	if in.Status == core.StatusBlock {
		if len(in.Corrections) > 0 {
			return core.ActionRetryWithCorrection
		}
		return core.ActionAbort
	}
	// FLAG
	if highestSeverity(in.Corrections) <= core.SeverityRank(core.SeverityMedium) {
		return core.ActionProceedWithWarning
	}
	return core.ActionRetryWithCorrection
}

func highestSeverity(corrections []core.Correction) int {
	highest := 0
	for _, c := range corrections {
		if r := core.SeverityRank(c.Severity); r > highest {
			highest = r
		}
	}
	return highest
}

func buildMessage(in BuildInput, action core.SuggestedAction, clinical bool) string {
	switch action {
	case core.ActionHumanReview:
		switch {
		case clinical:
			return "Output contains a potential medication discrepancy. Human clinical review required."
		case in.MaxRetries > 0 && in.Attempt >= in.MaxRetries:
			return "Maximum retry attempts reached. Human review required."
		default:
			return "Output requires human review before use."
		}
	case core.ActionRetryWithCorrection:
		return fmt.Sprintf("%d correction(s) required before this output can be approved.", len(in.Corrections))
	case core.ActionAbort:
		return "Output blocked with no specific corrections available. Abort the action."
	default:
		return "Output flagged with minor issues. Proceed with caution."
	}
}

func buildInstruction(in BuildInput, action core.SuggestedAction, clinical bool) string {
	var b strings.Builder

	switch action {
	case core.ActionHumanReview:
		if clinical {
			b.WriteString("STOP: route this output to a human clinical reviewer before any use. ")
		} else {
			b.WriteString("Route this output to a human reviewer before any use. ")
		}
	case core.ActionRetryWithCorrection:
		b.WriteString("Regenerate the output applying every correction below, then resubmit with the same session_id. ")
	case core.ActionAbort:
		b.WriteString("Discard this output and abort the action it supports. ")
	default:
		b.WriteString("The output may be used, but review the notes below. ")
	}

	for _, c := range in.Corrections {
		b.WriteString("\n")
		b.WriteString(directive(c))
	}
	return b.String()
}

func directive(c core.Correction) string {
	switch c.Type {
	case core.CorrectionSourceContradiction:
		return fmt.Sprintf(
			"- CONTRADICTION: your statement %q contradicts the source, which states %q. Correct the statement to match the source.",
			c.Found, c.Expected)
	case core.CorrectionFabricatedClaim:
		return fmt.Sprintf(
			"- UNVERIFIED CLAIM: %q could not be verified against the source. Remove it or cite the supporting document.",
			c.Text)
	case core.CorrectionNumericalDistortion:
		if c.RequiresClinicalReview {
			return fmt.Sprintf(
				"- MEDICATION DOSE DISCREPANCY: output states %q but the source states %q. This may be an intentional prescriber change. Do NOT auto-correct; verify with prescriber before correcting.",
				c.Found, c.Expected)
		}
		return fmt.Sprintf(
			"- NUMERICAL ERROR: output states %q but the source states %q. Use the exact source value.",
			c.Found, c.Expected)
	case core.CorrectionBias:
		return fmt.Sprintf(
			"- BIAS: %s. Rewrite using neutral language that presents both positions.",
			c.Text)
	default:
		return fmt.Sprintf("- CORRECTION: %s", c.Text)
	}
}
