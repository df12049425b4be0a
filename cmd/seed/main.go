// Command seed wipes the database and loads demo data: a platform
// super_admin, a demo tenant with an admin, a regular user, a project and a
// task.
package main

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskhub/internal/model"
	"taskhub/pkg/config"
	"taskhub/pkg/database"
	"taskhub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger.InitLogger(cfg)
	log := logger.GetLogger()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	log.Info("Running seed script...")

	// Clean existing data, children first
	for _, m := range []interface{}{
		&model.AuditLog{}, &model.Task{}, &model.Project{}, &model.User{}, &model.Tenant{},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			log.Fatal("Failed to clean existing data", zap.Error(err))
		}
	}

	superAdmin := model.User{
		Email:        "superadmin@system.com",
		PasswordHash: mustHash(log, "Admin@123"),
		FullName:     "System Super Admin",
		Role:         model.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := db.Create(&superAdmin).Error; err != nil {
		log.Fatal("Failed to create super admin", zap.Error(err))
	}
	log.Info("Super admin created", zap.String("email", superAdmin.Email))

	demoTenant := model.Tenant{
		Name:             "Demo Company",
		Subdomain:        "demo",
		Status:           model.TenantActive,
		SubscriptionPlan: model.PlanPro,
		MaxUsers:         25,
		MaxProjects:      15,
	}
	if err := db.Create(&demoTenant).Error; err != nil {
		log.Fatal("Failed to create demo tenant", zap.Error(err))
	}
	tenantID := demoTenant.ID
	log.Info("Demo tenant created", zap.String("subdomain", demoTenant.Subdomain))

	tenantAdmin := model.User{
		TenantID:     &tenantID,
		Email:        "admin@demo.com",
		PasswordHash: mustHash(log, "Demo@123"),
		FullName:     "Demo Admin",
		Role:         model.RoleTenantAdmin,
		IsActive:     true,
	}
	if err := db.Create(&tenantAdmin).Error; err != nil {
		log.Fatal("Failed to create tenant admin", zap.Error(err))
	}

	regularUser := model.User{
		TenantID:     &tenantID,
		Email:        "user1@demo.com",
		PasswordHash: mustHash(log, "User@123"),
		FullName:     "Demo User",
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := db.Create(&regularUser).Error; err != nil {
		log.Fatal("Failed to create regular user", zap.Error(err))
	}

	project := model.Project{
		TenantID:    tenantID,
		Name:        "Project Alpha",
		Description: "Demo project for evaluation",
		Status:      model.ProjectActive,
		CreatedBy:   tenantAdmin.ID,
	}
	if err := db.Create(&project).Error; err != nil {
		log.Fatal("Failed to create project", zap.Error(err))
	}

	due := time.Now().AddDate(0, 0, 7)
	assignee := regularUser.ID
	task := model.Task{
		TenantID:    tenantID,
		ProjectID:   project.ID,
		Title:       "Initial Setup Task",
		Description: "This is a seeded task",
		Status:      model.TaskTodo,
		Priority:    model.PriorityHigh,
		AssignedTo:  &assignee,
		DueDate:     &due,
	}
	if err := db.Create(&task).Error; err != nil {
		log.Fatal("Failed to create task", zap.Error(err))
	}

	log.Info("Seed completed")
}

func mustHash(log *zap.Logger, plaintext string) string {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash password", zap.Error(err))
	}
	return string(hashed)
}
