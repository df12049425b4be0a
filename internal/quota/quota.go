// Package quota enforces tenant subscription ceilings before resource
// creation.
package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

// Resource is a countable, quota-gated resource kind.
type Resource string

const (
	ResourceUsers    Resource = "users"
	ResourceProjects Resource = "projects"
)

// Enforcer checks tenant limits against live counts. The check and the
// subsequent create are not atomic: two creators racing the same boundary
// may both pass and overshoot the limit by one. That is an accepted
// tradeoff at tenant-scale traffic, not a silent bug; callers get a
// non-strict SLA on quotas.
type Enforcer struct {
	db *gorm.DB
}

func NewEnforcer(db *gorm.DB) *Enforcer {
	return &Enforcer{db: db}
}

// Check allows creation while the current count is strictly below the
// tenant's ceiling for the resource kind.
func (e *Enforcer) Check(ctx context.Context, tenantID uuid.UUID, kind Resource) error {
	var tenant model.Tenant
	if err := e.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Tenant not found")
		}
		return err
	}

	var count int64
	var limit int
	switch kind {
	case ResourceUsers:
		limit = tenant.MaxUsers
		if err := e.db.WithContext(ctx).Model(&model.User{}).
			Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return apperr.QuotaExceeded("User limit reached for your subscription plan")
		}
	case ResourceProjects:
		limit = tenant.MaxProjects
		if err := e.db.WithContext(ctx).Model(&model.Project{}).
			Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return apperr.QuotaExceeded("Project limit reached for your subscription plan")
		}
	}
	return nil
}
