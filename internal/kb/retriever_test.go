package kb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/core"
)

type fakeSearcher struct {
	has  bool
	hits []ChunkHit
	err  error
}

func (f *fakeSearcher) TenantHasChunks(context.Context, string) (bool, error) {
	return f.has, f.err
}

func (f *fakeSearcher) SearchChunks(context.Context, string, []float32, int) ([]ChunkHit, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func TestRetrieve_EmptyIndexIsNotAnError(t *testing.T) {
	r := NewRetriever(&fakeSearcher{has: false}, &fakeEmbedder{})

	result, err := r.Retrieve(context.Background(), "ten_a", "query", 5, 0.6)
	require.NoError(t, err)
	assert.Empty(t, result.Context)
	assert.Empty(t, result.Matches)
}

func TestRetrieve_FiltersByRelevance(t *testing.T) {
	searcher := &fakeSearcher{
		has: true,
		hits: []ChunkHit{
			{Chunk: core.KBChunk{ID: "chk_1", DocumentName: "contract.pdf", Content: "Notice period is 30 days."}, Distance: 0.1},
			{Chunk: core.KBChunk{ID: "chk_2", DocumentName: "contract.pdf", Content: "Unrelated boilerplate."}, Distance: 0.7},
		},
	}
	r := NewRetriever(searcher, &fakeEmbedder{vec: []float32{1, 0}})

	result, err := r.Retrieve(context.Background(), "ten_a", "notice period", 5, 0.6)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1, "relevance 0.3 falls below the 0.6 floor")
	assert.Equal(t, "chk_1", result.Matches[0].ChunkID)
	assert.InDelta(t, 0.9, result.Matches[0].RelevanceScore, 0.001)
	assert.Equal(t, "Notice period is 30 days.", result.Context)
}

func TestRetrieve_JoinsChunksWithBlankLine(t *testing.T) {
	searcher := &fakeSearcher{
		has: true,
		hits: []ChunkHit{
			{Chunk: core.KBChunk{ID: "chk_1", Content: "First chunk."}, Distance: 0.05},
			{Chunk: core.KBChunk{ID: "chk_2", Content: "Second chunk."}, Distance: 0.10},
		},
	}
	r := NewRetriever(searcher, &fakeEmbedder{vec: []float32{1}})

	result, err := r.Retrieve(context.Background(), "ten_a", "query", 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "First chunk.\n\nSecond chunk.", result.Context)
}

func TestRetrieve_TruncatesPreview(t *testing.T) {
	long := strings.Repeat("x", 250)
	searcher := &fakeSearcher{
		has:  true,
		hits: []ChunkHit{{Chunk: core.KBChunk{ID: "chk_1", Content: long}, Distance: 0}},
	}
	r := NewRetriever(searcher, &fakeEmbedder{vec: []float32{1}})

	result, err := r.Retrieve(context.Background(), "ten_a", "query", 5, 0)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Len(t, result.Matches[0].ContentPreview, 100)
}

func TestRetrieve_EmbedFailurePropagates(t *testing.T) {
	r := NewRetriever(&fakeSearcher{has: true}, &fakeEmbedder{err: errors.New("embedder down")})

	_, err := r.Retrieve(context.Background(), "ten_a", "query", 5, 0.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}

func TestHTTPEmbedder_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Text)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	vec, err := NewHTTPEmbedder(srv.URL).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHTTPEmbedder_ErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPEmbedder(srv.URL).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestHTTPEmbedder_EmptyVectorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	_, err := NewHTTPEmbedder(srv.URL).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty vector")
}
