package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/policy"
)

// bucket is one tenant's token bucket. Capacity refills continuously at
// capacity-per-minute.
type bucket struct {
	tokens   float64
	capacity float64
	lastFill time.Time
}

// RateLimiter applies a per-tenant token bucket sized by plan. State is
// process-local and reconstructible on restart.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets:         make(map[string]*bucket),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow takes one token for the tenant, reporting the remaining budget.
func (rl *RateLimiter) Allow(tenantID string, plan core.Plan) (allowed bool, limit, remaining int) {
	capacity := float64(policy.RateLimit(plan))
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[tenantID]
	if !ok || b.capacity != capacity {
		b = &bucket{tokens: capacity, capacity: capacity, lastFill: now}
		rl.buckets[tenantID] = b
	}

	// Continuous refill at capacity tokens per minute.
	elapsed := now.Sub(b.lastFill).Minutes()
	b.tokens += elapsed * capacity
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, int(capacity), 0
	}
	b.tokens--
	return true, int(capacity), int(b.tokens)
}

// Middleware enforces the bucket after authentication.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := TenantFrom(r.Context())
		if tenant == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, limit, remaining := rl.Allow(tenant.ID, tenant.Plan)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":  "rate_limited",
				"detail": fmt.Sprintf("Rate limit of %d requests/minute exceeded for plan %s.", limit, tenant.Plan),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats reports live bucket fill levels, for debugging.
func (rl *RateLimiter) Stats() map[string]int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make(map[string]int, len(rl.buckets))
	for id, b := range rl.buckets {
		out[id] = int(b.tokens)
	}
	return out
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets idle long enough to be full again.
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-2 * time.Minute)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, b := range rl.buckets {
		if b.lastFill.Before(cutoff) {
			delete(rl.buckets, id)
		}
	}
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}
