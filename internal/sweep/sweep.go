// Package sweep reconciles the children a crashed cascade may have left
// behind. Cascading deletes complete before the parent's removal is
// acknowledged but are not atomic with it, so a crash between the two steps
// can orphan tasks or leave assignments pointing at deleted users.
package sweep

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/model"
)

// Sweeper reconciles cross-entity invariants that cascades cannot guarantee
// transactionally.
type Sweeper interface {
	Reconcile(ctx context.Context) (Result, error)
}

// Result reports what a sweep cleaned up.
type Result struct {
	OrphanTasksDeleted  int64
	AssignmentsDetached int64
}

// GormSweeper is the storage-backed Sweeper.
type GormSweeper struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *GormSweeper {
	return &GormSweeper{db: db, log: log}
}

// Reconcile deletes tasks whose project no longer exists and detaches task
// assignments referencing deleted users.
func (s *GormSweeper) Reconcile(ctx context.Context) (Result, error) {
	var res Result

	orphans := s.db.WithContext(ctx).
		Where("project_id NOT IN (?)", s.db.Model(&model.Project{}).Select("id")).
		Delete(&model.Task{})
	if orphans.Error != nil {
		return res, orphans.Error
	}
	res.OrphanTasksDeleted = orphans.RowsAffected

	dangling := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("assigned_to IS NOT NULL").
		Where("assigned_to NOT IN (?)", s.db.Model(&model.User{}).Select("id")).
		Update("assigned_to", nil)
	if dangling.Error != nil {
		return res, dangling.Error
	}
	res.AssignmentsDetached = dangling.RowsAffected

	if res.OrphanTasksDeleted > 0 || res.AssignmentsDetached > 0 {
		s.log.Info("Reconciliation sweep cleaned up",
			zap.Int64("orphan_tasks_deleted", res.OrphanTasksDeleted),
			zap.Int64("assignments_detached", res.AssignmentsDetached))
	}

	return res, nil
}
