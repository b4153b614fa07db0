package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

type preferenceRequest struct {
	Output string `json:"output"`
	Domain string `json:"domain"`
	Source string `json:"source"`
}

type preferenceResponse struct {
	Score        float64  `json:"score"`
	BiasDetected bool     `json:"bias_detected"`
	Direction    string   `json:"direction"`
	PartyA       string   `json:"party_a"`
	PartyB       string   `json:"party_b"`
	Flags        []string `json:"flags"`
	Details      struct {
		Sentiment struct {
			Label string `json:"label"`
		} `json:"sentiment"`
	} `json:"details"`
}

// PreferenceCheck detects implicit steering: sentiment polarity plus
// directional bias between the two parties the output talks about.
type PreferenceCheck struct {
	client *Client
	url    string
	noise  *noiseSource
}

func NewPreferenceCheck(client *Client, url string, noise *noiseSource) *PreferenceCheck {
	return &PreferenceCheck{client: client, url: url, noise: noise}
}

func (c *PreferenceCheck) Name() core.CheckName { return core.CheckPreference }

func (c *PreferenceCheck) Run(ctx context.Context, in Input) core.CheckResult {
	if c.url == "" {
		return c.heuristic(in.Output)
	}

	var resp preferenceResponse
	err := c.client.PostJSON(ctx, "preference", c.url+"/analyze", preferenceRequest{
		Output: in.Output,
		Domain: string(in.Domain),
		Source: in.Context,
	}, &resp)
	if err != nil {
		return c.heuristic(in.Output)
	}

	score := round3(clamp01(resp.Score))
	flags := append([]string(nil), resp.Flags...)
	var corrections []core.Correction

	if resp.BiasDetected {
		if !contains(flags, "strong_bias") {
			flags = append(flags, "strong_bias")
		}
		corrections = append(corrections, core.Correction{
			Type:     core.CorrectionBias,
			Check:    core.CheckPreference,
			Text:     fmt.Sprintf("directional bias (%s) favoring %s over %s", resp.Direction, resp.PartyA, resp.PartyB),
			Severity: core.SeverityMedium,
		})
	} else if score < 0.75 && !contains(flags, "mild_preference") {
		flags = append(flags, "mild_preference")
	}

	var detail string
	if resp.BiasDetected {
		detail = fmt.Sprintf("Bias detected (score %.3f). Direction: %s (favoring %s over %s). Sentiment: %s.",
			score, resp.Direction, resp.PartyA, resp.PartyB, resp.Details.Sentiment.Label)
	} else {
		detail = fmt.Sprintf("Output is balanced (score %.3f). Direction: %s. Sentiment: %s.",
			score, resp.Direction, resp.Details.Sentiment.Label)
	}

	return core.CheckResult{Score: score, Flags: flags, Detail: detail, Corrections: corrections}
}

var (
	strongBiasPhrases = []string{
		"extremely aggressive", "extremely unfavorable", "clearly unfair",
		"obviously risky", "obviously unfavorable", "must reject",
		"should never accept", "should never agree", "outrageous",
		"alarming", "devastating", "unacceptable terms",
		"strongly advise against", "no reasonable person would",
		"you must not", "under no circumstances",
	}
	mildBiasWords = []string{
		"must", "should", "always", "never", "clearly", "obviously",
		"undoubtedly", "certainly", "worst", "terrible", "dangerous",
		"unacceptable", "unreasonable", "excessive", "egregious",
	}
	balancedIndicators = []string{
		"however", "on the other hand", "alternatively", "in contrast",
		"both parties", "either party", "balanced", "standard",
		"typical", "common in", "customary", "reasonable",
		"the clause states", "the provision provides", "the section specifies",
		"according to", "as stated in",
	}
	aggressiveClaim = regexp.MustCompile(`\b(?:aggressive|extreme|excessive|unreasonable|outrageous)\s+\w+`)
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// heuristic counts loaded phrases and directional words.
func (c *PreferenceCheck) heuristic(output string) core.CheckResult {
	lower := strings.ToLower(output)

	strongHits := 0
	for _, p := range strongBiasPhrases {
		if strings.Contains(lower, p) {
			strongHits++
		}
	}
	mildHits := 0
	for _, w := range mildBiasWords {
		if strings.Contains(lower, w) {
			mildHits++
		}
	}
	balancedHits := 0
	for _, p := range balancedIndicators {
		if strings.Contains(lower, p) {
			balancedHits++
		}
	}
	aggressiveHits := len(aggressiveClaim.FindAllString(lower, -1))

	score := 0.85
	score -= float64(strongHits) * 0.20
	score -= float64(mildHits) * 0.04
	score -= float64(aggressiveHits) * 0.10
	score += float64(balancedHits) * 0.03
	if c.noise != nil {
		score += (c.noise.Float64() - 0.5) * 0.04
	}
	score = round3(clamp01(score))

	var flags []string
	var corrections []core.Correction
	var detail string
	switch {
	case score < 0.5:
		flags = append(flags, "strong_bias")
		corrections = append(corrections, core.Correction{
			Type:     core.CorrectionBias,
			Check:    core.CheckPreference,
			Text:     fmt.Sprintf("%d loaded phrase(s), %d directional word(s)", strongHits, mildHits),
			Severity: core.SeverityMedium,
		})
		detail = fmt.Sprintf(
			"Output contains strongly biased language (%d loaded phrase(s), %d directional word(s)).",
			strongHits, mildHits)
	case score < 0.75:
		flags = append(flags, "mild_preference")
		detail = fmt.Sprintf("Output contains some directional language (%d indicator(s)).", mildHits)
	default:
		detail = "Output uses neutral, balanced language without significant directional bias."
	}
	flags = append(flags, "preference_unavailable")

	return core.CheckResult{
		Score:       score,
		Flags:       flags,
		Detail:      detail + " (heuristic fallback: preference service unavailable)",
		Corrections: corrections,
	}
}

var _ Checker = (*PreferenceCheck)(nil)
