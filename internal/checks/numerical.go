package checks

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

type numericalRequest struct {
	AIOutput      string `json:"ai_output"`
	SourceContext string `json:"source_context"`
	Domain        string `json:"domain"`
}

type numberMatch struct {
	SourceValue float64 `json:"source_value"`
	SourceRaw   string  `json:"source_raw"`
	AIValue     float64 `json:"ai_value"`
	AIRaw       string  `json:"ai_raw"`
	Context     string  `json:"context"`
	ContextType string  `json:"context_type"`
	Match       bool    `json:"match"`
	Deviation   float64 `json:"deviation"`
	Tolerance   float64 `json:"tolerance"`
	Severity    string  `json:"severity"`
	Detail      string  `json:"detail"`
}

type ungroundedNumber struct {
	Value       float64 `json:"value"`
	Raw         string  `json:"raw"`
	Context     string  `json:"context"`
	ContextType string  `json:"context_type"`
}

type numericalResponse struct {
	Score              float64            `json:"score"`
	Status             string             `json:"status"` // pass | fail | warning
	NumbersInSource    int                `json:"numbers_found_in_source"`
	NumbersInAI        int                `json:"numbers_found_in_ai"`
	Matches            []numberMatch      `json:"matches"`
	UngroundedNumbers  []ungroundedNumber `json:"ungrounded_numbers"`
	CriticalMismatches int                `json:"critical_mismatches"`
	Detail             string             `json:"detail"`
}

// Mismatch classification: a ratio this far off is a transcription or
// unit error; anything inside the clinical adjustment range is a
// discrepancy that may be an intentional change.
const (
	errorRatioHigh = 5.0
	errorRatioLow  = 0.2
)

// NumericalCheck compares numbers in the output against the source
// within domain tolerances. This is the check NLI models miss: a dose
// of 100mg entails nothing about 50mg.
type NumericalCheck struct {
	client *Client
	url    string
}

func NewNumericalCheck(client *Client, url string) *NumericalCheck {
	return &NumericalCheck{client: client, url: url}
}

func (c *NumericalCheck) Name() core.CheckName { return core.CheckNumerical }

func (c *NumericalCheck) Run(ctx context.Context, in Input) core.CheckResult {
	merged := in.MergedContext()
	if merged == "" {
		return core.CheckResult{
			Score:  0.5,
			Flags:  []string{"no_context_provided"},
			Detail: "No source document provided. Numbers cannot be verified.",
		}
	}
	if c.url == "" {
		return c.heuristic(in.Output, merged)
	}

	domain := in.Domain
	if domain == "" {
		domain = core.DomainGeneral
	}

	var resp numericalResponse
	err := c.client.PostJSON(ctx, "numerical", c.url+"/verify", numericalRequest{
		AIOutput:      in.Output,
		SourceContext: merged,
		Domain:        string(domain),
	}, &resp)
	if err != nil {
		return c.heuristic(in.Output, merged)
	}

	var flags []string
	var corrections []core.Correction
	failed := 0
	for _, m := range resp.Matches {
		if m.Match {
			continue
		}
		failed++
		corrections = append(corrections, buildNumericalCorrection(m, domain))
	}

	if resp.CriticalMismatches > 0 {
		flags = append(flags, "critical_numerical_mismatch")
	}
	if failed > 0 {
		flags = append(flags, "numerical_distortion")
	}
	if resp.Status == "warning" && failed == 0 {
		flags = append(flags, "numerical_warning")
	}
	if len(resp.UngroundedNumbers) > 0 {
		flags = append(flags, "ungrounded_numbers")
	}

	return core.CheckResult{
		Score:       round3(clamp01(resp.Score)),
		Flags:       flags,
		Detail:      resp.Detail,
		Corrections: corrections,
	}
}

func buildNumericalCorrection(m numberMatch, domain core.Domain) core.Correction {
	subtype := "discrepancy"
	if m.SourceValue != 0 {
		ratio := m.AIValue / m.SourceValue
		if ratio >= errorRatioHigh || ratio <= errorRatioLow {
			subtype = "error"
		}
	} else if m.AIValue != 0 {
		subtype = "error"
	}

	severity := core.SeverityMedium
	switch m.Severity {
	case "critical":
		severity = core.SeverityCritical
	case "high":
		severity = core.SeverityHigh
	default:
		if subtype == "error" {
			severity = core.SeverityHigh
		}
	}

	isDose := m.ContextType == "medication_dose" || m.ContextType == "dosage"
	return core.Correction{
		Type:                   core.CorrectionNumericalDistortion,
		Check:                  core.CheckNumerical,
		Found:                  m.AIRaw,
		Expected:               m.SourceRaw,
		Text:                   m.Context,
		Severity:               severity,
		Subtype:                subtype,
		RequiresClinicalReview: domain == core.DomainHealthcare && isDose && subtype == "discrepancy",
	}
}

var rawNumber = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// heuristic: approximate equality of raw numbers, 2% tolerance.
func (c *NumericalCheck) heuristic(output, contextText string) core.CheckResult {
	aiNums := extractRawNumbers(output)
	srcNums := extractRawNumbers(contextText)

	if len(aiNums) == 0 {
		return core.CheckResult{
			Score:  1.0,
			Flags:  []string{"numerical_unavailable"},
			Detail: "No numbers found in AI output to verify. (heuristic fallback: numerical service unavailable)",
		}
	}

	matched := 0
	for _, a := range aiNums {
		for _, s := range srcNums {
			if approxEqual(a, s, 0.02) {
				matched++
				break
			}
		}
	}

	score := float64(matched) / float64(len(aiNums))
	var flags []string
	if matched < len(aiNums) {
		flags = append(flags, "ungrounded_numbers")
	}
	if score < 0.5 {
		flags = append(flags, "numerical_distortion")
	}
	flags = append(flags, "numerical_unavailable")

	return core.CheckResult{
		Score: round3(score),
		Flags: flags,
		Detail: fmt.Sprintf(
			"%d of %d number(s) in the output match the source. (heuristic fallback: numerical service unavailable)",
			matched, len(aiNums)),
	}
}

func extractRawNumbers(text string) []float64 {
	var out []float64
	for _, m := range rawNumber.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}

func approxEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= tol
}

var _ Checker = (*NumericalCheck)(nil)
