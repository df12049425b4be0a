// Package authz is the authorization core: the resolved principal, the
// tenant scope derived from it, and the pure role/action policy. It has no
// HTTP or storage dependencies so the rules are testable in isolation.
package authz

import (
	"github.com/google/uuid"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

// Principal is the authenticated identity for the current request. It is
// built once by the auth middleware from a verified token plus a fresh user
// lookup, and is the only trusted source of role and tenant downstream.
type Principal struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID // nil only for super_admin
	Role     model.Role
}

// ClaimedTenantID is a tenant id supplied by the caller in a path, body or
// query string. It is untrusted: it may be compared against a TenantScope
// but must never be used as a data filter directly.
type ClaimedTenantID uuid.UUID

func (c ClaimedTenantID) UUID() uuid.UUID { return uuid.UUID(c) }

// TenantScope is the tenant boundary a request is restricted to. It is
// derived from the principal, never from request input.
type TenantScope struct {
	unrestricted bool
	tenant       uuid.UUID
}

// ScopeFor derives the effective tenant scope for a principal. super_admin
// gets an unrestricted scope; everyone else is pinned to their home tenant.
func ScopeFor(p Principal) (TenantScope, error) {
	if p.Role == model.RoleSuperAdmin {
		return TenantScope{unrestricted: true}, nil
	}
	if p.TenantID == nil {
		// Should not happen given the data model, but a principal without a
		// tenant must never fall through to an unscoped query.
		return TenantScope{}, apperr.NoTenantContext()
	}
	return TenantScope{tenant: *p.TenantID}, nil
}

// Unrestricted reports whether the scope may cross tenant boundaries.
func (s TenantScope) Unrestricted() bool { return s.unrestricted }

// TenantID returns the single tenant the scope is pinned to. Callers must
// check Unrestricted first; an unrestricted scope has no tenant of its own.
func (s TenantScope) TenantID() uuid.UUID { return s.tenant }

// Covers reports whether the caller-claimed tenant id falls inside the
// scope. This comparison is the only bridge between claimed and scoped
// tenant identifiers.
func (s TenantScope) Covers(claimed ClaimedTenantID) bool {
	if s.unrestricted {
		return true
	}
	return s.tenant == uuid.UUID(claimed)
}

// Require returns the cross-tenant denial unless the scope covers the
// claimed id. Handlers taking a tenant id from the path go through here
// before any policy or storage work.
func (s TenantScope) Require(claimed ClaimedTenantID) error {
	if !s.Covers(claimed) {
		return errCrossTenant
	}
	return nil
}

// CoversPtr is Covers for nullable tenant ids (e.g. a super_admin user row).
func (s TenantScope) CoversPtr(tenantID *uuid.UUID) bool {
	if s.unrestricted {
		return true
	}
	return tenantID != nil && *tenantID == s.tenant
}
