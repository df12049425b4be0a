package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is a passive record of mutating operations. TenantID is nil for
// platform-level (super_admin) actions. Nothing enforces anything off these
// rows; they exist for after-the-fact inspection only.
type AuditLog struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   *uuid.UUID `json:"tenant_id" gorm:"type:uuid;index:idx_audit_tenant_created"`
	UserID     *uuid.UUID `json:"user_id" gorm:"type:uuid"`
	Action     string     `json:"action" gorm:"type:varchar(50);not null"`
	EntityType string     `json:"entity_type" gorm:"type:varchar(50);not null"`
	EntityID   string     `json:"entity_id" gorm:"type:varchar(64);not null"`
	IPAddress  string     `json:"ip_address" gorm:"type:varchar(45)"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index:idx_audit_tenant_created,sort:desc"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
