package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/apperr"
	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/internal/quota"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

// CreateProject creates a project in the caller's tenant, subject to the
// subscription's project ceiling.
func (h *Handler) CreateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "create")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}
	scope, ok := scopeFrom(c)
	if !ok {
		return response.Error(c, http.StatusForbidden, "Tenant context missing")
	}

	if err := authz.Decide(p, authz.ActionProjectCreate, authz.TenantTarget(scope.TenantID())); err != nil {
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	var req struct {
		Name        string `json:"name" validate:"required,max=100"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse project creation request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	status := model.ProjectActive
	if req.Status != "" {
		status = model.ProjectStatus(req.Status)
		if !status.Valid() {
			return response.Error(c, http.StatusBadRequest, "Invalid project status")
		}
	}

	ctx := c.Request().Context()
	tenantID := scope.TenantID()

	if err := h.quota.Check(ctx, tenantID, quota.ResourceProjects); err != nil {
		if e, ok := apperr.As(err); ok {
			log.Warn("Project creation blocked", zap.String("reason", e.Message))
			prometheus.RecordQuotaRejection("projects")
			return response.Error(c, e.Status, e.Message)
		}
		log.Error("Quota check failed", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create project")
	}

	project := model.Project{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Status:      status,
		CreatedBy:   p.UserID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.WithContext(ctx).Create(&project).Error; err != nil {
		log.Error("Failed to create project", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create project")
	}

	h.audit.Record(ctx, p, "project.create", "project", project.ID, c.RealIP())
	log.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.String("tenant_id", tenantID.String()))

	return response.Created(c, "", echo.Map{
		"id":          project.ID,
		"tenant_id":   project.TenantID,
		"name":        project.Name,
		"description": project.Description,
		"status":      project.Status,
		"created_by":  project.CreatedBy,
		"created_at":  project.CreatedAt,
	})
}

// ListProjects returns the caller tenant's projects with task counts.
func (h *Handler) ListProjects(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "list")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}
	scope, ok := scopeFrom(c)
	if !ok {
		return response.Error(c, http.StatusForbidden, "Tenant context missing")
	}

	if err := authz.Decide(p, authz.ActionProjectList, authz.TenantTarget(scope.TenantID())); err != nil {
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	page, limit, offset := paginate(c, 20)
	ctx := c.Request().Context()

	query := h.db.WithContext(ctx).Model(&model.Project{}).Where("tenant_id = ?", scope.TenantID())
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.QueryParam("search"); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("Failed to count projects", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list projects")
	}

	var projects []model.Project
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&projects).Error; err != nil {
		log.Error("Failed to list projects", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list projects")
	}

	items := make([]echo.Map, 0, len(projects))
	for _, project := range projects {
		var taskCount, completedCount int64
		h.db.WithContext(ctx).Model(&model.Task{}).Where("project_id = ?", project.ID).Count(&taskCount)
		h.db.WithContext(ctx).Model(&model.Task{}).
			Where("project_id = ? AND status = ?", project.ID, model.TaskCompleted).Count(&completedCount)
		items = append(items, echo.Map{
			"id":                   project.ID,
			"name":                 project.Name,
			"description":          project.Description,
			"status":               project.Status,
			"created_by":           project.CreatedBy,
			"task_count":           taskCount,
			"completed_task_count": completedCount,
			"created_at":           project.CreatedAt,
		})
	}

	return response.OK(c, echo.Map{
		"projects":   items,
		"total":      total,
		"pagination": paginationFor(page, limit, total),
	})
}

// UpdateProject modifies a project. tenant_admin may update any project in
// the tenant; a regular user only their own.
func (h *Handler) UpdateProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "update")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	projectID, err := uuidParam(c, "projectId", "project")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse project update request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var project model.Project
	if err := h.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Project not found")
		}
		log.Error("Failed to load project", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to update project")
	}

	target := authz.Target{TenantID: &project.TenantID, OwnerID: project.CreatedBy}
	if err := authz.Decide(p, authz.ActionProjectUpdate, target); err != nil {
		log.Warn("Project update denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("project_id", project.ID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return response.Error(c, http.StatusBadRequest, "Name must not be empty")
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		if !model.ProjectStatus(*req.Status).Valid() {
			return response.Error(c, http.StatusBadRequest, "Invalid project status")
		}
		updates["status"] = *req.Status
	}

	if len(updates) > 0 {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := h.db.WithContext(ctx).Model(&project).Updates(updates).Error; err != nil {
			log.Error("Failed to update project", zap.Error(err))
			return response.Error(c, http.StatusInternalServerError, "Failed to update project")
		}
	}

	h.audit.Record(ctx, p, "project.update", "project", project.ID, c.RealIP())

	return response.Updated(c, "Project updated successfully", echo.Map{
		"id":          project.ID,
		"name":        project.Name,
		"description": project.Description,
		"status":      project.Status,
		"updated_at":  project.UpdatedAt,
	})
}

// DeleteProject removes a project and all its tasks. Tasks go first so no
// orphan task can outlive a successful delete.
func (h *Handler) DeleteProject(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("project", "delete")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	projectID, err := uuidParam(c, "projectId", "project")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var project model.Project
	if err := h.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Project not found")
		}
		log.Error("Failed to load project", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete project")
	}

	target := authz.Target{TenantID: &project.TenantID, OwnerID: project.CreatedBy}
	if err := authz.Decide(p, authz.ActionProjectDelete, target); err != nil {
		log.Warn("Project deletion denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("project_id", project.ID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := h.db.WithContext(ctx).
		Where("project_id = ?", project.ID).Delete(&model.Task{}).Error; err != nil {
		log.Error("Failed to delete project tasks", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete project")
	}
	if err := h.db.WithContext(ctx).Delete(&project).Error; err != nil {
		log.Error("Failed to delete project", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete project")
	}

	h.audit.Record(ctx, p, "project.delete", "project", project.ID, c.RealIP())
	log.Info("Project deleted",
		zap.String("project_id", project.ID.String()),
		zap.String("by_user_id", p.UserID.String()))

	return response.Message(c, http.StatusOK, "Project deleted successfully")
}
