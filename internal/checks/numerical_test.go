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
	"github.com/meerkat-ai/gateway/internal/core"
)

func numericalService(t *testing.T, resp numericalResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		var req numericalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestNumericalCheck_FinancialMismatch(t *testing.T) {
	srv := numericalService(t, numericalResponse{
		Score:  0.45,
		Status: "fail",
		Matches: []numberMatch{{
			SourceValue: 782.3, SourceRaw: "$782.3M",
			AIValue: 847, AIRaw: "$847M",
			Context: "quarterly revenue", ContextType: "revenue",
			Match: false, Deviation: 0.0827, Severity: "critical",
		}},
		CriticalMismatches: 1,
		Detail:             "1 of 1 number(s) mismatched.",
	})
	defer srv.Close()

	check := NewNumericalCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL)
	res := check.Run(context.Background(), Input{
		Output:  "Revenue reached $847M this quarter.",
		Context: "Revenue was $782.3M in Q3.",
		Domain:  core.DomainFinancial,
	})

	assert.InDelta(t, 0.45, res.Score, 0.001)
	assert.Contains(t, res.Flags, "critical_numerical_mismatch")
	assert.Contains(t, res.Flags, "numerical_distortion")

	require.Len(t, res.Corrections, 1)
	c := res.Corrections[0]
	assert.Equal(t, core.CorrectionNumericalDistortion, c.Type)
	assert.Equal(t, "$847M", c.Found)
	assert.Equal(t, "$782.3M", c.Expected)
	assert.Equal(t, "discrepancy", c.Subtype, "8% deviation is a discrepancy, not a unit error")
	assert.Equal(t, core.SeverityCritical, c.Severity)
	assert.False(t, c.RequiresClinicalReview)
}

func TestNumericalCheck_HealthcareDoseDiscrepancy(t *testing.T) {
	srv := numericalService(t, numericalResponse{
		Score:  0.3,
		Status: "fail",
		Matches: []numberMatch{{
			SourceValue: 50, SourceRaw: "50mg",
			AIValue: 100, AIRaw: "100mg",
			Context: "metoprolol dose", ContextType: "medication_dose",
			Match: false, Severity: "high",
		}},
	})
	defer srv.Close()

	check := NewNumericalCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL)
	res := check.Run(context.Background(), Input{
		Output:  "Continue metoprolol 100mg twice daily.",
		Context: "Discharge medication: metoprolol 50mg twice daily.",
		Domain:  core.DomainHealthcare,
	})

	require.Len(t, res.Corrections, 1)
	c := res.Corrections[0]
	assert.Equal(t, "discrepancy", c.Subtype, "2x dose is inside the clinical adjustment range")
	assert.True(t, c.RequiresClinicalReview)
	assert.Equal(t, core.SeverityHigh, c.Severity)
}

func TestNumericalCheck_ExtremeRatioIsError(t *testing.T) {
	srv := numericalService(t, numericalResponse{
		Score:  0.2,
		Status: "fail",
		Matches: []numberMatch{{
			SourceValue: 50, SourceRaw: "50mg",
			AIValue: 500, AIRaw: "500mg",
			ContextType: "medication_dose", Match: false, Severity: "critical",
		}},
	})
	defer srv.Close()

	check := NewNumericalCheck(NewClient(circuitbreaker.NewManager(nil)), srv.URL)
	res := check.Run(context.Background(), Input{
		Output:  "Take 500mg daily.",
		Context: "Prescribed 50mg daily.",
		Domain:  core.DomainHealthcare,
	})

	require.Len(t, res.Corrections, 1)
	c := res.Corrections[0]
	assert.Equal(t, "error", c.Subtype, "10x is a transcription error, not an adjustment")
	assert.False(t, c.RequiresClinicalReview, "the clinical gate covers plausible adjustments only")
}

func TestNumericalCheck_NoContext(t *testing.T) {
	check := NewNumericalCheck(nil, "")
	res := check.Run(context.Background(), Input{Output: "The fee is $100."})

	assert.InDelta(t, 0.5, res.Score, 0.001)
	assert.Contains(t, res.Flags, "no_context_provided")
}

func TestNumericalCheck_HeuristicWithoutService(t *testing.T) {
	check := NewNumericalCheck(nil, "")
	res := check.Run(context.Background(), Input{
		Output:  "The notice period is 30 days and the fee is 100 dollars.",
		Context: "Notice period: 30 days. Fee: 100 dollars.",
	})

	assert.InDelta(t, 1.0, res.Score, 0.001)
	assert.Contains(t, res.Flags, "numerical_unavailable")
	assert.NotContains(t, res.Flags, "numerical_distortion")
}

func TestNumericalCheck_HeuristicFlagsUngrounded(t *testing.T) {
	check := NewNumericalCheck(nil, "")
	res := check.Run(context.Background(), Input{
		Output:  "The penalty is 5000 dollars.",
		Context: "The agreement sets a penalty of 500 dollars.",
	})

	assert.Contains(t, res.Flags, "ungrounded_numbers")
	assert.Contains(t, res.Flags, "numerical_distortion")
	assert.Contains(t, res.Flags, "numerical_unavailable")
}
