package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

type entropyRequest struct {
	Question       string `json:"question"`
	AIOutput       string `json:"ai_output"`
	NumCompletions int    `json:"num_completions"`
	SourceContext  string `json:"source_context,omitempty"`
}

type entropyResponse struct {
	SemanticEntropy    float64 `json:"semantic_entropy"`
	NumClusters        int     `json:"num_clusters"`
	NumCompletions     int     `json:"num_completions"`
	Interpretation     string  `json:"interpretation"`
	AIOutputCluster    int     `json:"ai_output_cluster"` // -1 when no cluster entails the output
	AIOutputInMajority bool    `json:"ai_output_in_majority"`
}

var flaggedInterpretations = map[string]bool{
	"moderate_uncertainty": true,
	"high_uncertainty":     true,
	"confabulation_likely": true,
}

// EntropyCheck measures answer stability: the remote service samples
// completions at high temperature, clusters them by bidirectional
// entailment and reports Shannon entropy over the clusters.
type EntropyCheck struct {
	client *Client
	url    string
	noise  *noiseSource
}

func NewEntropyCheck(client *Client, url string, noise *noiseSource) *EntropyCheck {
	return &EntropyCheck{client: client, url: url, noise: noise}
}

func (c *EntropyCheck) Name() core.CheckName { return core.CheckSemanticEntropy }

func (c *EntropyCheck) Run(ctx context.Context, in Input) core.CheckResult {
	if c.url == "" || in.Question == "" {
		return c.heuristic(in.Output)
	}

	var resp entropyResponse
	err := c.client.PostJSON(ctx, "entropy", c.url+"/analyze", entropyRequest{
		Question:       in.Question,
		AIOutput:       in.Output,
		NumCompletions: 10,
		SourceContext:  in.Context,
	}, &resp)
	if err != nil {
		return c.heuristic(in.Output)
	}

	score := round3(clamp01(1.0 - resp.SemanticEntropy))

	var flags []string
	if flaggedInterpretations[resp.Interpretation] {
		switch resp.Interpretation {
		case "moderate_uncertainty":
			flags = append(flags, "moderate_uncertainty")
		default:
			flags = append(flags, "high_uncertainty")
		}
	}
	switch {
	case resp.AIOutputCluster < 0:
		flags = append(flags, "reference_no_cluster_match")
	case !resp.AIOutputInMajority && resp.NumClusters > 1:
		flags = append(flags, "reference_minority_cluster")
	}

	detail := fmt.Sprintf(
		"%d completions formed %d cluster(s). Semantic entropy: %.3f.",
		resp.NumCompletions, resp.NumClusters, resp.SemanticEntropy)
	switch {
	case resp.AIOutputCluster < 0:
		detail += " The original output did not match any completion cluster."
	case !resp.AIOutputInMajority && resp.NumClusters > 1:
		detail += " The original output is NOT in the majority cluster."
	}

	return core.CheckResult{Score: score, Flags: flags, Detail: detail}
}

var (
	hedgeWords = map[string]bool{
		"may": true, "might": true, "could": true, "possibly": true,
		"perhaps": true, "uncertain": true, "likely": true,
		"unlikely": true, "appears": true, "seems": true,
		"arguably": true, "potentially": true, "suggest": true,
		"suggests": true, "probable": true, "presumably": true,
		"conceivably": true,
	}
	hedgePhrases = []string{
		"it is unclear", "it seems", "it appears", "it is possible",
		"it is likely", "it is unlikely", "there may be",
		"there might be", "not entirely clear", "difficult to determine",
		"hard to say", "open to interpretation", "subject to debate",
	}
	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d+[\s-](?:day|week|month|year|mile)s?\b`),
		regexp.MustCompile(`(?i)(?:Section|Clause|Article)\s+\d`),
		regexp.MustCompile(`\$[\d,]+`),
		regexp.MustCompile(`\d+(?:\.\d+)?%`),
		regexp.MustCompile(`(?i)\b(?:requires|contains|states|specifies|provides|mandates)\b`),
	}
	contradictionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bbut\s+(?:also|however)`),
		regexp.MustCompile(`\bhowever.*(?:nevertheless|nonetheless)`),
		regexp.MustCompile(`\bon\s+(?:the\s+)?one\s+hand.*on\s+the\s+other`),
	}
)

// heuristic estimates confidence from the text itself: hedge density
// down, specific facts up, plus a little noise for realism.
func (c *EntropyCheck) heuristic(output string) core.CheckResult {
	lower := strings.ToLower(output)
	words := strings.Fields(lower)
	wordCount := len(words)
	if wordCount == 0 {
		wordCount = 1
	}

	hedgeCount := 0
	for _, w := range words {
		if hedgeWords[strings.Trim(w, ".,;:!?")] {
			hedgeCount++
		}
	}
	phraseCount := 0
	for _, p := range hedgePhrases {
		if strings.Contains(lower, p) {
			phraseCount++
		}
	}
	confidenceCount := 0
	for _, re := range confidencePatterns {
		confidenceCount += len(re.FindAllString(output, -1))
	}
	contradictionCount := 0
	for _, re := range contradictionPatterns {
		if re.MatchString(lower) {
			contradictionCount++
		}
	}

	score := 0.5
	boost := float64(confidenceCount) * 0.08
	if boost > 0.4 {
		boost = 0.4
	}
	score += boost
	score -= float64(hedgeCount) / float64(wordCount) * 3.0
	score -= float64(phraseCount) * 0.08
	score -= float64(contradictionCount) * 0.15
	if wordCount < 20 && confidenceCount == 0 {
		score -= 0.1
	}
	if c.noise != nil {
		score += (c.noise.Float64() - 0.5) * 0.04
	}
	score = round3(clamp01(score))

	var flags []string
	switch {
	case score < 0.35:
		flags = append(flags, "high_uncertainty")
	case score < 0.65:
		flags = append(flags, "moderate_uncertainty")
	}
	if contradictionCount > 0 {
		flags = append(flags, "self_contradicting")
	}
	flags = append(flags, "entropy_unavailable")

	return core.CheckResult{
		Score: score,
		Flags: flags,
		Detail: fmt.Sprintf(
			"Hedge-density heuristic: %d hedge word(s), %d specific fact(s). (heuristic fallback: entropy service unavailable)",
			hedgeCount, confidenceCount),
	}
}

var _ Checker = (*EntropyCheck)(nil)
