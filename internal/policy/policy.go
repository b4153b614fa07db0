// Package policy resolves and validates per-tenant governance
// configuration and owns quota accounting.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meerkat-ai/gateway/internal/cache"
	"github.com/meerkat-ai/gateway/internal/core"
	"github.com/meerkat-ai/gateway/internal/database"
)

const policyCacheTTL = 60 * time.Second

type Service struct {
	store database.Store
	cache cache.Cache
}

func NewService(store database.Store, c cache.Cache) *Service {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Service{store: store, cache: c}
}

// Resolve returns the policy for a verify call: an explicit config id
// wins, then the tenant default, then the built-in default. Cached
// briefly since every verify reads it.
func (s *Service) Resolve(ctx context.Context, tenantID, configID string, domain core.Domain) (*core.Policy, error) {
	key := "policy:" + tenantID + ":" + configID
	var cached core.Policy
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	p, err := s.store.GetPolicy(ctx, tenantID, configID)
	if errors.Is(err, core.ErrNotFound) && configID == "" {
		p = core.DefaultPolicy(tenantID, domain)
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, p, policyCacheTTL); err != nil {
		slog.Warn("policy cache write failed", "error", err)
	}
	return p, nil
}

// Save validates and persists a policy as the tenant default.
func (s *Service) Save(ctx context.Context, p *core.Policy) error {
	if err := Validate(p); err != nil {
		return err
	}
	if p.ConfigID == "" {
		p.ConfigID = core.NewConfigID(p.TenantID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := s.store.SavePolicy(ctx, p); err != nil {
		return err
	}
	// New default invalidates the empty-config entry; named entries
	// expire on TTL.
	if err := s.cache.Delete(ctx, "policy:"+p.TenantID+":"); err != nil {
		slog.Warn("policy cache invalidation failed", "error", err)
	}
	return nil
}

// Validate enforces the write rules: thresholds in range and ordered,
// check names from the supported set, sane KB and retry settings.
func Validate(p *core.Policy) error {
	if p.AutoApproveThreshold < 0 || p.AutoApproveThreshold > 100 {
		return fmt.Errorf("auto_approve_threshold must be in [0,100]: %w", core.ErrValidation)
	}
	if p.AutoBlockThreshold < 0 || p.AutoBlockThreshold > 100 {
		return fmt.Errorf("auto_block_threshold must be in [0,100]: %w", core.ErrValidation)
	}
	if p.AutoApproveThreshold <= p.AutoBlockThreshold {
		return fmt.Errorf("auto_approve_threshold must exceed auto_block_threshold: %w", core.ErrValidation)
	}
	for _, c := range p.RequiredChecks {
		if !core.ValidCheck(string(c)) {
			return fmt.Errorf("unknown required check %q: %w", c, core.ErrValidation)
		}
	}
	for _, c := range p.OptionalChecks {
		if !core.ValidCheck(string(c)) {
			return fmt.Errorf("unknown optional check %q: %w", c, core.ErrValidation)
		}
	}
	if p.KBMinRelevance < 0 || p.KBMinRelevance > 1 {
		return fmt.Errorf("kb_min_relevance must be in [0,1]: %w", core.ErrValidation)
	}
	if p.KBTopK < 0 || p.KBTopK > 50 {
		return fmt.Errorf("kb_top_k must be in [0,50]: %w", core.ErrValidation)
	}
	if p.MaxRetries < 0 || p.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be in [0,10]: %w", core.ErrValidation)
	}
	if p.Domain != "" && !core.ValidDomain(string(p.Domain)) {
		return fmt.Errorf("unknown domain %q: %w", p.Domain, core.ErrValidation)
	}
	return nil
}
