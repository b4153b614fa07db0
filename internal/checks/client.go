// Package checks implements the governance check panel: five adapters
// that prefer a remote ML service and degrade to deterministic
// heuristics, plus the orchestrator that fuses their scores into a
// trust verdict.
package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meerkat-ai/gateway/internal/circuitbreaker"
)

// RPC budget per remote call. Non-OK or timed-out calls surface an
// error so the adapter can fall back to its heuristic.
const (
	rpcTimeout  = 5 * time.Second
	rpcAttempts = 2
)

var rpcBackoff = []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}

// Client posts JSON to the remote check services with retry and a
// per-service circuit breaker.
type Client struct {
	http     *http.Client
	breakers *circuitbreaker.Manager
}

func NewClient(breakers *circuitbreaker.Manager) *Client {
	if breakers == nil {
		breakers = circuitbreaker.NewManager(nil)
	}
	return &Client{
		http:     &http.Client{Timeout: rpcTimeout},
		breakers: breakers,
	}
}

// Breakers exposes the manager for health reporting.
func (c *Client) Breakers() *circuitbreaker.Manager { return c.breakers }

// PostJSON sends payload to url and decodes the response into out.
// service names the circuit breaker; all attempts count against it.
func (c *Client) PostJSON(ctx context.Context, service, url string, payload, out interface{}) error {
	cb := c.breakers.Get(service)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, c.postWithRetry(ctx, url, payload, out)
	})
	return err
}

func (c *Client) postWithRetry(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < rpcAttempts; attempt++ {
		if attempt > 0 {
			backoff := rpcBackoff[backoffIndex(attempt)]
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if lastErr = c.postOnce(ctx, url, body, out); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func backoffIndex(attempt int) int {
	if attempt-1 >= len(rpcBackoff) {
		return len(rpcBackoff) - 1
	}
	return attempt - 1
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
