package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote service down")

func testConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.Requests >= 5 && counts.FailureRatio() > 0.5
		},
	}
}

func fail(cb *CircuitBreaker) error {
	_, err := cb.Execute(func() (interface{}, error) { return nil, errRemote })
	return err
}

func succeed(cb *CircuitBreaker) error {
	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	return err
}

func TestBreaker_StaysClosedUnderHalfFailures(t *testing.T) {
	cb := New(testConfig("nli"))

	for i := 0; i < 5; i++ {
		require.NoError(t, succeed(cb))
		require.Error(t, fail(cb))
	}
	assert.Equal(t, StateClosed, cb.State(), "50% failures is not past the trip ratio")
}

func TestBreaker_TripsOpenAndShortCircuits(t *testing.T) {
	cb := New(testConfig("nli"))

	for i := 0; i < 5; i++ {
		fail(cb)
	}
	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) {
		t.Fatal("request must not run while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig("nli"))
	for i := 0; i < 5; i++ {
		fail(cb)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State(), "MaxRequests consecutive successes close the circuit")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig("nli"))
	for i := 0; i < 5; i++ {
		fail(cb)
	}
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	fail(cb)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cfg := testConfig("claims")
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	cb := New(cfg)

	for i := 0; i < 5; i++ {
		fail(cb)
	}
	require.Equal(t, []string{"CLOSED>OPEN"}, transitions)
}

func TestManager_OneBreakerPerService(t *testing.T) {
	m := NewManager(nil)

	a := m.Get("nli")
	b := m.Get("nli")
	c := m.Get("entropy")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "nli", a.Name())

	stats := m.Stats()
	assert.Len(t, stats, 2)
	assert.Equal(t, StateClosed, stats["entropy"].State)
}

func TestManager_HealthStatus(t *testing.T) {
	m := NewManager(testConfig(""))

	m.Get("nli")
	status, detail := m.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Equal(t, "CLOSED", detail["nli"])

	cb := m.Get("entropy")
	for i := 0; i < 5; i++ {
		fail(cb)
	}
	status, detail = m.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
	assert.Equal(t, "OPEN", detail["entropy"])
}

func TestExecuteWithFallback(t *testing.T) {
	cb := New(testConfig("numerical"))

	got, err := ExecuteWithFallback(cb,
		func() (string, error) { return "remote", nil },
		func(error) (string, error) { return "heuristic", nil })
	require.NoError(t, err)
	assert.Equal(t, "remote", got)

	got, err = ExecuteWithFallback(cb,
		func() (string, error) { return "", errRemote },
		func(err error) (string, error) {
			assert.ErrorIs(t, err, errRemote)
			return "heuristic", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "heuristic", got)
}
