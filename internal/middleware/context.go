// Package middleware holds the HTTP cross-cutting layers: credential
// authentication, per-tenant rate limiting, and request logging.
package middleware

import (
	"context"

	"github.com/meerkat-ai/gateway/internal/core"
)

type contextKey string

const tenantKey contextKey = "tenant"

// WithTenant attaches the authenticated tenant to the request context.
func WithTenant(ctx context.Context, t *core.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFrom returns the authenticated tenant, or nil outside the auth
// middleware.
func TenantFrom(ctx context.Context) *core.Tenant {
	t, _ := ctx.Value(tenantKey).(*core.Tenant)
	return t
}
