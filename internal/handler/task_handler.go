package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

// CreateTask creates a task under a project of the caller's tenant. The
// task inherits the project's tenant id; an assignee must belong to the
// same tenant.
func (h *Handler) CreateTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("task", "create")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	projectID, err := uuidParam(c, "projectId", "project")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var req struct {
		Title       string     `json:"title" validate:"required,max=200"`
		Description string     `json:"description"`
		Priority    string     `json:"priority"`
		AssignedTo  *uuid.UUID `json:"assigned_to"`
		DueDate     *time.Time `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse task creation request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	priority := model.PriorityMedium
	if req.Priority != "" {
		priority = model.TaskPriority(req.Priority)
		if !priority.Valid() {
			return response.Error(c, http.StatusBadRequest, "Invalid task priority")
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var project model.Project
	if err := h.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Project not found")
		}
		log.Error("Failed to load project", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create task")
	}

	if err := authz.Decide(p, authz.ActionTaskCreate, authz.TenantTarget(project.TenantID)); err != nil {
		log.Warn("Task creation denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("project_id", project.ID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	if req.AssignedTo != nil {
		if err := h.checkAssignee(c, *req.AssignedTo, project.TenantID); err != nil {
			return response.FromError(c, err, "Invalid request")
		}
	}

	task := model.Task{
		TenantID:    project.TenantID,
		ProjectID:   project.ID,
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TaskTodo,
		Priority:    priority,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.WithContext(ctx).Create(&task).Error; err != nil {
		log.Error("Failed to create task", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create task")
	}

	h.audit.Record(ctx, p, "task.create", "task", task.ID, c.RealIP())
	log.Info("Task created",
		zap.String("task_id", task.ID.String()),
		zap.String("project_id", project.ID.String()))

	return response.Created(c, "", echo.Map{
		"id":          task.ID,
		"project_id":  task.ProjectID,
		"tenant_id":   task.TenantID,
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"priority":    task.Priority,
		"assigned_to": task.AssignedTo,
		"due_date":    task.DueDate,
		"created_at":  task.CreatedAt,
	})
}

// ListProjectTasks returns the tasks of one project. The query carries both
// the project id and the tenant scope filter.
func (h *Handler) ListProjectTasks(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("task", "list")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}
	scope, ok := scopeFrom(c)
	if !ok {
		return response.Error(c, http.StatusForbidden, "Tenant context missing")
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
		return response.Error(c, http.StatusInternalServerError, "Failed to list tasks")
	}

	if err := authz.Decide(p, authz.ActionTaskList, authz.TenantTarget(project.TenantID)); err != nil {
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	page, limit, offset := paginate(c, 50)

	query := h.db.WithContext(ctx).Model(&model.Task{}).
		Where("project_id = ? AND tenant_id = ?", project.ID, scope.TenantID())
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if priority := c.QueryParam("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if assignedTo := c.QueryParam("assigned_to"); assignedTo != "" {
		query = query.Where("assigned_to = ?", assignedTo)
	}
	if search := c.QueryParam("search"); search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("Failed to count tasks", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list tasks")
	}

	var tasks []model.Task
	if err := query.Order("priority DESC").Order("due_date ASC").
		Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		log.Error("Failed to list tasks", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list tasks")
	}

	return response.OK(c, echo.Map{
		"tasks":      tasks,
		"total":      total,
		"pagination": paginationFor(page, limit, total),
	})
}

// UpdateTaskStatus changes only the workflow status of a task.
func (h *Handler) UpdateTaskStatus(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("task", "update_status")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	taskID, err := uuidParam(c, "taskId", "task")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse task status request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	status := model.TaskStatus(req.Status)
	if !status.Valid() {
		return response.Error(c, http.StatusBadRequest, "Invalid task status")
	}

	task, err := h.loadAuthorizedTask(c, p, taskID, authz.ActionTaskUpdate)
	if err != nil {
		return response.FromError(c, err, "Failed to update task")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	ctx := c.Request().Context()
	if err := h.db.WithContext(ctx).Model(task).Update("status", status).Error; err != nil {
		log.Error("Failed to update task status", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to update task status")
	}

	h.audit.Record(ctx, p, "task.update_status", "task", task.ID, c.RealIP())

	return response.OK(c, echo.Map{
		"id":         task.ID,
		"status":     task.Status,
		"updated_at": task.UpdatedAt,
	})
}

// UpdateTask modifies any task field. Absent fields are left alone; an
// explicit "assigned_to": null detaches the assignee, so presence is
// detected on the raw body.
func (h *Handler) UpdateTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("task", "update")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	taskID, err := uuidParam(c, "taskId", "task")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var body map[string]json.RawMessage
	if err := c.Bind(&body); err != nil {
		log.Error("Failed to parse task update request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	task, err := h.loadAuthorizedTask(c, p, taskID, authz.ActionTaskUpdate)
	if err != nil {
		return response.FromError(c, err, "Failed to update task")
	}

	ctx := c.Request().Context()
	updates := map[string]interface{}{}

	if raw, present := body["title"]; present {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil || title == "" {
			return response.Error(c, http.StatusBadRequest, "Invalid task title")
		}
		updates["title"] = title
	}
	if raw, present := body["description"]; present {
		var description string
		if err := json.Unmarshal(raw, &description); err != nil {
			return response.Error(c, http.StatusBadRequest, "Invalid task description")
		}
		updates["description"] = description
	}
	if raw, present := body["status"]; present {
		var status model.TaskStatus
		if err := json.Unmarshal(raw, &status); err != nil || !status.Valid() {
			return response.Error(c, http.StatusBadRequest, "Invalid task status")
		}
		updates["status"] = status
	}
	if raw, present := body["priority"]; present {
		var priority model.TaskPriority
		if err := json.Unmarshal(raw, &priority); err != nil || !priority.Valid() {
			return response.Error(c, http.StatusBadRequest, "Invalid task priority")
		}
		updates["priority"] = priority
	}
	if raw, present := body["due_date"]; present {
		var dueDate *time.Time
		if err := json.Unmarshal(raw, &dueDate); err != nil {
			return response.Error(c, http.StatusBadRequest, "Invalid due date")
		}
		updates["due_date"] = dueDate
	}
	if raw, present := body["assigned_to"]; present {
		var assignee *uuid.UUID
		if err := json.Unmarshal(raw, &assignee); err != nil {
			return response.Error(c, http.StatusBadRequest, "Invalid assignee")
		}
		if assignee != nil {
			if err := h.checkAssignee(c, *assignee, task.TenantID); err != nil {
				return response.FromError(c, err, "Invalid request")
			}
		}
		updates["assigned_to"] = assignee
	}

	if len(updates) > 0 {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := h.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
			log.Error("Failed to update task", zap.Error(err))
			return response.Error(c, http.StatusInternalServerError, "Failed to update task")
		}
	}

	h.audit.Record(ctx, p, "task.update", "task", task.ID, c.RealIP())

	return response.Updated(c, "Task updated successfully", echo.Map{
		"id":          task.ID,
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"priority":    task.Priority,
		"assigned_to": task.AssignedTo,
		"due_date":    task.DueDate,
		"updated_at":  task.UpdatedAt,
	})
}

// DeleteTask removes a task. Any tenant member may delete any task of their
// tenant; there is deliberately no creator restriction here, mirroring the
// update rule rather than the project rule.
func (h *Handler) DeleteTask(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("task", "delete")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	taskID, err := uuidParam(c, "taskId", "task")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	task, err := h.loadAuthorizedTask(c, p, taskID, authz.ActionTaskDelete)
	if err != nil {
		return response.FromError(c, err, "Failed to delete task")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	ctx := c.Request().Context()
	if err := h.db.WithContext(ctx).Delete(task).Error; err != nil {
		log.Error("Failed to delete task", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete task")
	}

	h.audit.Record(ctx, p, "task.delete", "task", task.ID, c.RealIP())

	return response.Message(c, http.StatusOK, "Task deleted successfully")
}

// loadAuthorizedTask loads a task by id and runs the policy gate against
// its owning tenant.
func (h *Handler) loadAuthorizedTask(c echo.Context, p authz.Principal, taskID uuid.UUID, action authz.Action) (*model.Task, error) {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var task model.Task
	if err := h.db.WithContext(c.Request().Context()).
		First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundTask
		}
		log.Error("Failed to load task", zap.Error(err))
		return nil, err
	}

	if err := authz.Decide(p, action, authz.TenantTarget(task.TenantID)); err != nil {
		log.Warn("Task operation denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("task_id", task.ID.String()))
		prometheus.RecordAuthError("forbidden")
		return nil, err
	}

	return &task, nil
}

// checkAssignee verifies that a prospective assignee belongs to the task's
// tenant. Everything else is a 400, matching the validation taxonomy.
func (h *Handler) checkAssignee(c echo.Context, assignee uuid.UUID, tenantID uuid.UUID) error {
	var user model.User
	if err := h.db.WithContext(c.Request().Context()).
		First(&user, "id = ?", assignee).Error; err != nil {
		return errAssigneeTenant
	}
	if user.TenantID == nil || *user.TenantID != tenantID {
		return errAssigneeTenant
	}
	return nil
}
