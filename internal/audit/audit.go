// Package audit writes the passive audit trail. Records are best-effort:
// nothing is enforced off them and a failed write never fails the request.
package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/authz"
	"taskhub/internal/model"
)

// Recorder appends audit rows for mutating operations.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record writes one audit entry. Errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, p authz.Principal, action, entityType string, entityID uuid.UUID, ip string) {
	userID := p.UserID
	entry := model.AuditLog{
		TenantID:   p.TenantID,
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		IPAddress:  ip,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.log.Warn("Failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.Error(err))
	}
}
