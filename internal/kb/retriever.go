// Package kb retrieves grounding context from a tenant's indexed
// documents by cosine similarity. Ingestion (parsing, chunking,
// embedding) happens outside the gateway; this package only reads.
package kb

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/meerkat-ai/gateway/internal/core"
)

// ChunkHit is one vector-search result with its cosine distance.
type ChunkHit struct {
	Chunk    core.KBChunk
	Distance float64
}

// ChunkSearcher is the storage surface the retriever needs.
type ChunkSearcher interface {
	TenantHasChunks(ctx context.Context, tenantID string) (bool, error)
	SearchChunks(ctx context.Context, tenantID string, embedding []float32, topK int) ([]ChunkHit, error)
}

// Embedder turns text into the 1536-dim unit vector the chunk index
// uses.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Retriever struct {
	store ChunkSearcher
	embed Embedder
}

func NewRetriever(store ChunkSearcher, embed Embedder) *Retriever {
	return &Retriever{store: store, embed: embed}
}

// Result carries the concatenated context plus the per-match records
// surfaced on the verify response.
type Result struct {
	Context string
	Matches []core.KBMatch
}

// Retrieve embeds text, searches the tenant's chunks and keeps the
// top-K whose relevance (1 - cosine distance) clears minRelevance.
// A tenant with no indexed chunks yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, text string, topK int, minRelevance float64) (Result, error) {
	has, err := r.store.TenantHasChunks(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("check knowledge base: %w", err)
	}
	if !has {
		return Result{}, nil
	}

	embedding, err := r.embed.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	if topK <= 0 {
		topK = 5
	}
	hits, err := r.store.SearchChunks(ctx, tenantID, embedding, topK)
	if err != nil {
		return Result{}, fmt.Errorf("search chunks: %w", err)
	}

	var parts []string
	var matches []core.KBMatch
	for _, hit := range hits {
		relevance := 1.0 - hit.Distance
		if relevance < minRelevance {
			continue
		}
		parts = append(parts, hit.Chunk.Content)
		matches = append(matches, core.KBMatch{
			ChunkID:        hit.Chunk.ID,
			DocumentName:   hit.Chunk.DocumentName,
			RelevanceScore: math.Round(relevance*1000) / 1000,
			ContentPreview: preview(hit.Chunk.Content, 100),
		})
	}

	return Result{
		Context: strings.Join(parts, "\n\n"),
		Matches: matches,
	}, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
