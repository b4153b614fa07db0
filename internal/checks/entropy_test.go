package checks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkat-ai/gateway/internal/circuitbreaker"
)

func entropyService(t *testing.T, resp entropyResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		var req entropyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEntropyCheck_NoClusterMatch(t *testing.T) {
	srv := entropyService(t, entropyResponse{
		SemanticEntropy:    0.72,
		NumClusters:        4,
		NumCompletions:     10,
		Interpretation:     "high_uncertainty",
		AIOutputCluster:    -1,
		AIOutputInMajority: false,
	})
	defer srv.Close()

	check := NewEntropyCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL, nil)
	res := check.Run(context.Background(), Input{
		Question: "What is the notice period?",
		Output:   "The notice period is 45 days.",
	})

	assert.InDelta(t, 0.28, res.Score, 0.001)
	assert.Contains(t, res.Flags, "reference_no_cluster_match")
	assert.NotContains(t, res.Flags, "reference_minority_cluster")
	assert.Contains(t, res.Detail, "did not match any completion cluster")
}

func TestEntropyCheck_MinorityCluster(t *testing.T) {
	srv := entropyService(t, entropyResponse{
		SemanticEntropy:    0.45,
		NumClusters:        3,
		NumCompletions:     10,
		Interpretation:     "moderate_uncertainty",
		AIOutputCluster:    2,
		AIOutputInMajority: false,
	})
	defer srv.Close()

	check := NewEntropyCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL, nil)
	res := check.Run(context.Background(), Input{
		Question: "What is the notice period?",
		Output:   "The notice period is 30 days.",
	})

	assert.Contains(t, res.Flags, "reference_minority_cluster")
	assert.NotContains(t, res.Flags, "reference_no_cluster_match")
	assert.Contains(t, res.Flags, "moderate_uncertainty")
	assert.Contains(t, res.Detail, "NOT in the majority cluster")
}

func TestEntropyCheck_MajorityClusterClean(t *testing.T) {
	srv := entropyService(t, entropyResponse{
		SemanticEntropy:    0.08,
		NumClusters:        1,
		NumCompletions:     10,
		Interpretation:     "high_confidence",
		AIOutputCluster:    0,
		AIOutputInMajority: true,
	})
	defer srv.Close()

	check := NewEntropyCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL, nil)
	res := check.Run(context.Background(), Input{
		Question: "What is the notice period?",
		Output:   "The notice period is 30 days.",
	})

	assert.InDelta(t, 0.92, res.Score, 0.001)
	assert.Empty(t, res.Flags)
}
