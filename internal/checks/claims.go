package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

type claimsRequest struct {
	AIOutput      string `json:"ai_output"`
	SourceContext string `json:"source_context"`
	EntailmentURL string `json:"entailment_url,omitempty"`
}

type claimDetail struct {
	ClaimID              int      `json:"claim_id"`
	Text                 string   `json:"text"`
	SourceSentence       string   `json:"source_sentence"`
	Status               string   `json:"status"` // verified | contradicted | unverified
	EntailmentScore      float64  `json:"entailment_score"`
	Entities             []string `json:"entities"`
	HallucinatedEntities []string `json:"hallucinated_entities"`
}

type claimsResponse struct {
	TotalClaims          int           `json:"total_claims"`
	Verified             int           `json:"verified"`
	Contradicted         int           `json:"contradicted"`
	Unverified           int           `json:"unverified"`
	Claims               []claimDetail `json:"claims"`
	HallucinatedEntities []string      `json:"hallucinated_entities"`
	Flags                []string      `json:"flags"`
}

// ClaimsCheck extracts factual claims from the output and verifies each
// against the source, surfacing contradicted and fabricated claims as
// corrections for the remediation builder.
type ClaimsCheck struct {
	client *Client
	url    string
	nliURL string
}

func NewClaimsCheck(client *Client, url, nliURL string) *ClaimsCheck {
	return &ClaimsCheck{client: client, url: url, nliURL: nliURL}
}

func (c *ClaimsCheck) Name() core.CheckName { return core.CheckClaims }

func (c *ClaimsCheck) Run(ctx context.Context, in Input) core.CheckResult {
	merged := in.MergedContext()
	if merged == "" {
		return core.CheckResult{
			Score:  0.5,
			Flags:  []string{"no_context_provided"},
			Detail: "No source document provided. Claims cannot be verified.",
			Claims: &core.ClaimBreakdown{},
		}
	}
	if c.url == "" {
		return c.heuristic(in.Output, merged)
	}

	var resp claimsResponse
	err := c.client.PostJSON(ctx, "claims", c.url+"/extract", claimsRequest{
		AIOutput:      in.Output,
		SourceContext: merged,
		EntailmentURL: c.nliURL,
	}, &resp)
	if err != nil {
		return c.heuristic(in.Output, merged)
	}

	score := 1.0
	if resp.TotalClaims > 0 {
		score = float64(resp.Verified) / float64(resp.TotalClaims)
	}

	flags := append([]string(nil), resp.Flags...)
	if resp.Unverified > 0 && !contains(flags, "unverified_claims") {
		flags = append(flags, "unverified_claims")
	}

	var corrections []core.Correction
	for _, claim := range resp.Claims {
		switch {
		case claim.Status == "contradicted":
			corrections = append(corrections, core.Correction{
				Type:     core.CorrectionSourceContradiction,
				Check:    core.CheckClaims,
				Found:    claim.Text,
				Expected: claim.SourceSentence,
				Text:     claim.Text,
				Severity: core.SeverityHigh,
			})
		case claim.Status == "unverified" && len(claim.HallucinatedEntities) > 0:
			corrections = append(corrections, core.Correction{
				Type:     core.CorrectionFabricatedClaim,
				Check:    core.CheckClaims,
				Text:     claim.Text,
				Severity: core.SeverityMedium,
			})
		}
	}

	parts := []string{fmt.Sprintf("Extracted %d factual claim(s).", resp.TotalClaims)}
	parts = append(parts, fmt.Sprintf("%d verified, %d unverified, %d contradicted.",
		resp.Verified, resp.Unverified, resp.Contradicted))
	if resp.Contradicted > 0 {
		parts = append(parts, "Source document contradicts one or more claims.")
	}
	if len(resp.HallucinatedEntities) > 0 {
		n := len(resp.HallucinatedEntities)
		if n > 5 {
			n = 5
		}
		parts = append(parts, fmt.Sprintf("Hallucinated entities detected: %s.",
			strings.Join(resp.HallucinatedEntities[:n], ", ")))
	}

	return core.CheckResult{
		Score:       round3(score),
		Flags:       flags,
		Detail:      strings.Join(parts, " "),
		Corrections: corrections,
		Claims: &core.ClaimBreakdown{
			Total:      resp.TotalClaims,
			Verified:   resp.Verified,
			Unverified: resp.Unverified,
		},
	}
}

// ---------------------------------------------------------------------------
// Heuristic fallback: regex-mined facts with token-contains verification.
// ---------------------------------------------------------------------------

type minedClaim struct {
	text  string
	kind  string
	value string
	unit  string
}

var (
	durationClaim = regexp.MustCompile(`(?i)(\d+)[\s-]*(day|week|month|year|mile)s?`)
	monetaryClaim = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?`)
	percentClaim  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	sectionClaim  = regexp.MustCompile(`(?i)(?:Section|Clause|Article)\s+(\d+(?:\.\d+)*)`)
	anyMoney      = regexp.MustCompile(`\$[\d,]+`)
)

func mineClaims(output string) []minedClaim {
	var claims []minedClaim
	for _, m := range durationClaim.FindAllStringSubmatch(output, -1) {
		claims = append(claims, minedClaim{text: m[0], kind: "duration", value: m[1], unit: strings.ToLower(m[2])})
	}
	for _, m := range monetaryClaim.FindAllString(output, -1) {
		claims = append(claims, minedClaim{text: m, kind: "monetary", value: m, unit: "dollars"})
	}
	for _, m := range percentClaim.FindAllStringSubmatch(output, -1) {
		claims = append(claims, minedClaim{text: m[0], kind: "percentage", value: m[1], unit: "percent"})
	}
	for _, m := range sectionClaim.FindAllStringSubmatch(output, -1) {
		claims = append(claims, minedClaim{text: m[0], kind: "section_ref", value: m[1], unit: "section"})
	}
	return claims
}

func verifyMined(claim minedClaim, contextText string) string {
	lower := strings.ToLower(contextText)
	switch claim.kind {
	case "duration":
		re := regexp.MustCompile(`(?i)(\d+)[\s-]*` + claim.unit + `s?`)
		matches := re.FindAllStringSubmatch(contextText, -1)
		if len(matches) == 0 {
			return "unverified"
		}
		for _, m := range matches {
			if m[1] == claim.value {
				return "verified"
			}
		}
		return "contradicted"
	case "monetary":
		if strings.Contains(lower, strings.ToLower(claim.value)) {
			return "verified"
		}
		if anyMoney.MatchString(contextText) {
			return "contradicted"
		}
		return "unverified"
	case "section_ref":
		if strings.Contains(contextText, claim.value) ||
			strings.Contains(lower, "section "+claim.value) {
			return "verified"
		}
		return "unverified"
	default:
		if strings.Contains(lower, strings.ToLower(claim.value)) {
			return "verified"
		}
		return "unverified"
	}
}

func (c *ClaimsCheck) heuristic(output, contextText string) core.CheckResult {
	mined := mineClaims(output)
	if len(mined) == 0 {
		return core.CheckResult{
			Score:  0.7,
			Flags:  []string{"claims_unavailable"},
			Detail: "No specific factual claims detected in the output. (heuristic fallback: claims service unavailable)",
			Claims: &core.ClaimBreakdown{},
		}
	}

	verified, contradicted, unverified := 0, 0, 0
	var flags []string
	var corrections []core.Correction
	for _, claim := range mined {
		switch verifyMined(claim, contextText) {
		case "verified":
			verified++
		case "contradicted":
			contradicted++
			corrections = append(corrections, core.Correction{
				Type:     core.CorrectionSourceContradiction,
				Check:    core.CheckClaims,
				Found:    claim.text,
				Text:     claim.text,
				Severity: core.SeverityHigh,
			})
		default:
			unverified++
			corrections = append(corrections, core.Correction{
				Type:     core.CorrectionFabricatedClaim,
				Check:    core.CheckClaims,
				Text:     claim.text,
				Severity: core.SeverityMedium,
			})
		}
	}

	total := len(mined)
	score := clamp01(float64(verified)/float64(total) -
		float64(contradicted)*0.25 - float64(unverified)*0.05)

	if unverified > 0 {
		flags = append(flags, "unverified_claims")
	}
	if unverified*2 > total {
		flags = append(flags, "majority_unverified")
	}
	flags = append(flags, "claims_unavailable")

	return core.CheckResult{
		Score: round3(score),
		Flags: flags,
		Detail: fmt.Sprintf(
			"Extracted %d factual claim(s). %d verified, %d unverified, %d contradicted. (heuristic fallback: claims service unavailable)",
			total, verified, unverified, contradicted),
		Corrections: corrections,
		Claims: &core.ClaimBreakdown{
			Total:      total,
			Verified:   verified,
			Unverified: unverified,
		},
	}
}

var _ Checker = (*ClaimsCheck)(nil)
