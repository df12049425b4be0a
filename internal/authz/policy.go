package authz

import (
	"github.com/google/uuid"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

// Action is the closed set of operations the policy rules over.
type Action int

const (
	ActionTenantView Action = iota
	ActionTenantList
	ActionTenantUpdateName
	ActionTenantUpdateSubscription
	ActionUserCreate
	ActionUserList
	ActionUserUpdateProfile
	ActionUserUpdateAdmin
	ActionUserDelete
	ActionProjectCreate
	ActionProjectList
	ActionProjectUpdate
	ActionProjectDelete
	ActionTaskCreate
	ActionTaskList
	ActionTaskUpdate
	ActionTaskDelete
)

// Target describes the already-loaded entity an action applies to. Ownership
// identifiers come from storage, never from the request body.
type Target struct {
	// TenantID is the owning tenant of the target entity. nil means the
	// target has no tenant (a super_admin user row, or a tenant-less action
	// like listing all tenants).
	TenantID *uuid.UUID
	// OwnerID is the creating user for ownership-gated entities (projects).
	OwnerID uuid.UUID
	// IsSelf marks user-targeted actions where target == caller. It is
	// evaluated before any role branch.
	IsSelf bool
}

// TenantTarget is shorthand for a target identified only by its owning tenant.
func TenantTarget(tenantID uuid.UUID) Target {
	return Target{TenantID: &tenantID}
}

var (
	errForbidden     = apperr.Forbidden("Access denied")
	errCrossTenant   = apperr.Forbidden("Unauthorized tenant access")
	errSelfDelete    = apperr.Forbidden("You cannot delete your own account")
	errAdminRequired = apperr.Forbidden("Tenant admin role required")
)

// Decide is the role authorization gate: a pure function over
// {principal, action, target}. It returns nil to allow, or a *apperr.Error
// (always 403) to deny. Tenant scoping of queries is the scope enforcer's
// job; Decide covers role and ownership policy, including the target-tenant
// comparison for entities loaded by id.
func Decide(p Principal, action Action, tgt Target) error {
	switch action {
	case ActionTenantList:
		if p.Role != model.RoleSuperAdmin {
			return errForbidden
		}
		return nil

	case ActionTenantView:
		if p.Role == model.RoleSuperAdmin {
			return nil
		}
		return requireSameTenant(p, tgt)

	case ActionTenantUpdateSubscription:
		// Plan, status and limit fields are platform-controlled.
		if p.Role != model.RoleSuperAdmin {
			return apperr.Forbidden("Tenant admin cannot update these fields")
		}
		return nil

	case ActionTenantUpdateName:
		switch p.Role {
		case model.RoleSuperAdmin:
			return nil
		case model.RoleTenantAdmin:
			return requireSameTenant(p, tgt)
		default:
			return errForbidden
		}

	case ActionUserCreate, ActionUserDelete:
		// super_admin has no home tenant; tenant membership management is a
		// tenant_admin concern only.
		if action == ActionUserDelete && tgt.IsSelf {
			return errSelfDelete
		}
		if p.Role != model.RoleTenantAdmin {
			return errAdminRequired
		}
		return requireSameTenant(p, tgt)

	case ActionUserList:
		if p.Role == model.RoleSuperAdmin {
			return errForbidden
		}
		return requireSameTenant(p, tgt)

	case ActionUserUpdateProfile:
		// Self-edits are always allowed but the handler restricts the field
		// set; this branch wins over role-based update even for admins.
		if !tgt.IsSelf {
			return errForbidden
		}
		return nil

	case ActionUserUpdateAdmin:
		switch p.Role {
		case model.RoleSuperAdmin:
			return nil
		case model.RoleTenantAdmin:
			return requireSameTenant(p, tgt)
		default:
			return errForbidden
		}

	case ActionProjectCreate, ActionProjectList,
		ActionTaskCreate, ActionTaskList, ActionTaskUpdate, ActionTaskDelete:
		// Any tenant member; super_admin has no tenant to operate in.
		if p.Role == model.RoleSuperAdmin {
			return errForbidden
		}
		return requireSameTenant(p, tgt)

	case ActionProjectUpdate, ActionProjectDelete:
		if p.Role == model.RoleSuperAdmin {
			return errForbidden
		}
		if err := requireSameTenant(p, tgt); err != nil {
			return err
		}
		if p.Role != model.RoleTenantAdmin && tgt.OwnerID != p.UserID {
			return apperr.Forbidden("Not authorized to modify this project")
		}
		return nil
	}

	return errForbidden
}

func requireSameTenant(p Principal, tgt Target) error {
	if p.TenantID == nil || tgt.TenantID == nil || *p.TenantID != *tgt.TenantID {
		return errCrossTenant
	}
	return nil
}
