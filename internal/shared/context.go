package shared

import (
	"context"

	"github.com/google/uuid"
)

type sessionContextKey struct{}

type tenantContextKey struct{}

// Tenant identifies the caller and the carrier every query is scoped to.
type Tenant struct {
	UserID    uuid.UUID
	CarrierID uuid.UUID
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithTenant stores the resolved tenant in context.
func ContextWithTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext returns the tenant placed by RequireTenant.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return tenant, ok
}
