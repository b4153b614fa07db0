package checks

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/meerkat-ai/gateway/internal/clinical"
	"github.com/meerkat-ai/gateway/internal/core"
)

// nliConcurrency caps sentence-level calls per request so one request
// cannot saturate the NLI service.
const nliConcurrency = 4

// Per-sentence NLI thresholds: entailment above entailedAbove counts as
// supported, contradiction above contradictedAbove as contradicted,
// everything else as low evidence.
const (
	entailedAbove     = 0.7
	contradictedAbove = 0.5
)

type nliRequest struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

type nliResponse struct {
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
	Label         string  `json:"label"`
}

// EntailmentCheck is the primary hallucination detector: every sentence
// of the output is tested against the most relevant context chunk.
type EntailmentCheck struct {
	client *Client
	url    string
}

func NewEntailmentCheck(client *Client, url string) *EntailmentCheck {
	return &EntailmentCheck{client: client, url: url}
}

func (c *EntailmentCheck) Name() core.CheckName { return core.CheckEntailment }

func (c *EntailmentCheck) Run(ctx context.Context, in Input) core.CheckResult {
	merged := in.MergedContext()
	if merged == "" {
		return core.CheckResult{
			Score:  0.5,
			Flags:  []string{"no_context_provided"},
			Detail: "No source document provided. Entailment check requires context for accurate scoring.",
		}
	}

	expanded := clinical.ExpandAbbreviations(merged)
	sentences := clinical.SplitSentences(clinical.ExpandAbbreviations(in.Output))
	if len(sentences) == 0 {
		return core.CheckResult{
			Score:  0.7,
			Flags:  nil,
			Detail: "No checkable sentences in the output.",
		}
	}
	chunks := clinical.ChunkContext(expanded, clinical.DefaultChunkWords, clinical.DefaultOverlapWords)

	if c.url == "" {
		return c.heuristic(sentences, expanded, "no NLI service configured")
	}

	results := make([]nliResponse, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nliConcurrency)
	for i, sentence := range sentences {
		i, sentence := i, sentence
		g.Go(func() error {
			premise := clinical.MostRelevantChunk(chunks, sentence)
			var resp nliResponse
			if err := c.client.PostJSON(gctx, "nli", c.url+"/predict", nliRequest{
				Premise:    premise,
				Hypothesis: sentence,
			}, &resp); err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return c.heuristic(sentences, expanded, "request cancelled")
		}
		return c.heuristic(sentences, expanded, err.Error())
	}

	return aggregateNLI(results)
}

func aggregateNLI(results []nliResponse) core.CheckResult {
	var meanEntailment float64
	contradicted, lowEvidence := 0, 0
	for _, r := range results {
		meanEntailment += r.Entailment
		switch {
		case r.Contradiction > contradictedAbove:
			contradicted++
		case r.Entailment <= entailedAbove:
			lowEvidence++
		}
	}
	n := len(results)
	meanEntailment /= float64(n)
	contradictionRate := float64(contradicted) / float64(n)
	lowEvidenceRate := float64(lowEvidence) / float64(n)

	score := clamp01(meanEntailment - 0.5*contradictionRate - 0.15*lowEvidenceRate)

	var flags []string
	if contradicted > 0 {
		flags = append(flags, "entailment_contradiction")
	}
	if contradictionRate > 0.25 {
		flags = append(flags, "possible_fabrication")
	}
	if score < 0.5 {
		flags = append(flags, "low_entailment")
	}

	detail := fmt.Sprintf(
		"%d sentence(s) checked: %d contradicted, %d with low evidence. Mean entailment %.3f.",
		n, contradicted, lowEvidence, meanEntailment)
	if contradicted == 0 && lowEvidence == 0 {
		detail = fmt.Sprintf("All %d sentence(s) are supported by the source document.", n)
	}

	return core.CheckResult{Score: round3(score), Flags: flags, Detail: detail}
}

// heuristic scores by meaningful-token overlap between output sentences
// and the context, scaled by 2.0 and clamped.
func (c *EntailmentCheck) heuristic(sentences []string, contextText, reason string) core.CheckResult {
	ctxWords := clinical.MeaningfulWords(contextText)

	var total float64
	for _, s := range sentences {
		words := clinical.MeaningfulWords(s)
		if len(words) == 0 {
			total += 0.5
			continue
		}
		overlap := 0
		for w := range words {
			if _, ok := ctxWords[w]; ok {
				overlap++
			}
		}
		total += clamp01(float64(overlap) / float64(len(words)) * 2.0)
	}
	score := total / float64(len(sentences))

	flags := []string{"entailment_unavailable"}
	if score < 0.5 {
		flags = append(flags, "low_entailment")
	}
	return core.CheckResult{
		Score: round3(score),
		Flags: flags,
		Detail: fmt.Sprintf(
			"Token-overlap heuristic across %d sentence(s). (heuristic fallback: %s)",
			len(sentences), reason),
	}
}

var _ Checker = (*EntailmentCheck)(nil)
