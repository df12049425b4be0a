package handler

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"taskhub/internal/middleware"
	"taskhub/internal/model"
)

// Register wires every route with its middleware chain: authenticate, then
// tenant scope, then the coarse role guard; the fine-grained policy gate
// runs inside the handlers against the loaded target.
func Register(e *echo.Echo, h *Handler, db *gorm.DB) {
	e.GET("/api/health", h.HealthCheck)
	e.GET("/metrics", h.Metrics)

	auth := e.Group("/api/auth")
	auth.POST("/register-tenant", h.RegisterTenant)
	auth.POST("/login", h.Login)
	auth.GET("/me", h.GetCurrentUser, middleware.Authenticate(db))
	auth.POST("/logout", h.Logout, middleware.Authenticate(db))

	// Tenant management - super_admin reaches across tenants here, so no
	// tenant-scope middleware on this group
	tenants := e.Group("/api/tenants", middleware.Authenticate(db))
	tenants.GET("", h.ListTenants, middleware.RequireRoles(model.RoleSuperAdmin))
	tenants.GET("/:tenantId", h.GetTenantDetails)
	tenants.PUT("/:tenantId", h.UpdateTenant,
		middleware.RequireRoles(model.RoleTenantAdmin, model.RoleSuperAdmin))

	tenantUsers := e.Group("/api/tenants/:tenantId/users", middleware.Authenticate(db), middleware.TenantScope)
	tenantUsers.POST("", h.AddUser, middleware.RequireRoles(model.RoleTenantAdmin))
	tenantUsers.GET("", h.ListUsers)

	users := e.Group("/api/users", middleware.Authenticate(db))
	users.PUT("/:userId", h.UpdateUser)
	users.DELETE("/:userId", h.DeleteUser, middleware.RequireRoles(model.RoleTenantAdmin))

	// Projects and tasks are always tenant-scoped
	projects := e.Group("/api/projects", middleware.Authenticate(db), middleware.TenantScope)
	projects.POST("", h.CreateProject)
	projects.GET("", h.ListProjects)
	projects.PUT("/:projectId", h.UpdateProject)
	projects.DELETE("/:projectId", h.DeleteProject)
	projects.POST("/:projectId/tasks", h.CreateTask)
	projects.GET("/:projectId/tasks", h.ListProjectTasks)

	tasks := e.Group("/api/tasks", middleware.Authenticate(db), middleware.TenantScope)
	tasks.PATCH("/:taskId/status", h.UpdateTaskStatus)
	tasks.PUT("/:taskId", h.UpdateTask)
	tasks.DELETE("/:taskId", h.DeleteTask)
}
