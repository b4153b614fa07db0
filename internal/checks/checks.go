package checks

import (
	"context"
	"math/rand"
	"sync"

	"github.com/meerkat-ai/gateway/internal/core"
)

// Input carries everything a check can look at. Question is the user
// input, Context the caller-supplied source, KBContext the retrieved
// knowledge-base text.
type Input struct {
	Question  string
	Output    string
	Context   string
	KBContext string
	Domain    core.Domain
}

// MergedContext joins caller context and KB context, caller first.
func (in Input) MergedContext() string {
	switch {
	case in.Context != "" && in.KBContext != "":
		return in.Context + "\n\n" + in.KBContext
	case in.Context != "":
		return in.Context
	default:
		return in.KBContext
	}
}

// Checker is one governance check. Run never fails: adapters degrade to
// their heuristic on any transport error and say so in the result.
type Checker interface {
	Name() core.CheckName
	Run(ctx context.Context, in Input) core.CheckResult
}

// ServiceURLs locates the remote check services. Empty URL means
// heuristic-only for that check.
type ServiceURLs struct {
	NLI        string `yaml:"nli"`
	Entropy    string `yaml:"entropy"`
	Preference string `yaml:"preference"`
	Claims     string `yaml:"claims"`
	Numerical  string `yaml:"numerical"`
}

// noiseSource yields small random perturbations for the heuristics.
// Tests inject a fixed seed.
type noiseSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newNoiseSource(rng *rand.Rand) *noiseSource {
	return &noiseSource{rng: rng}
}

// Float64 returns a value in [0,1).
func (n *noiseSource) Float64() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rng.Float64()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
