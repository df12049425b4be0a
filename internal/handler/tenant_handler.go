package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

// ListTenants returns all tenants with usage counts. super_admin only.
func (h *Handler) ListTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("tenant", "list")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	if err := authz.Decide(p, authz.ActionTenantList, authz.Target{}); err != nil {
		log.Warn("Tenant listing denied", zap.String("user_id", p.UserID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	page, limit, offset := paginate(c, 10)
	ctx := c.Request().Context()

	query := h.db.WithContext(ctx).Model(&model.Tenant{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if plan := c.QueryParam("subscription_plan"); plan != "" {
		query = query.Where("subscription_plan = ?", plan)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("Failed to count tenants", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list tenants")
	}

	var tenants []model.Tenant
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&tenants).Error; err != nil {
		log.Error("Failed to list tenants", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list tenants")
	}

	items := make([]echo.Map, 0, len(tenants))
	for _, tenant := range tenants {
		var totalUsers, totalProjects int64
		h.db.WithContext(ctx).Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&totalUsers)
		h.db.WithContext(ctx).Model(&model.Project{}).Where("tenant_id = ?", tenant.ID).Count(&totalProjects)
		items = append(items, echo.Map{
			"id":                tenant.ID,
			"name":              tenant.Name,
			"subdomain":         tenant.Subdomain,
			"status":            tenant.Status,
			"subscription_plan": tenant.SubscriptionPlan,
			"total_users":       totalUsers,
			"total_projects":    totalProjects,
			"created_at":        tenant.CreatedAt,
		})
	}

	return response.OK(c, echo.Map{
		"tenants":    items,
		"total":      total,
		"pagination": paginationFor(page, limit, total),
	})
}

// GetTenantDetails returns one tenant with usage stats. Tenant members see
// only their own tenant; super_admin sees any.
func (h *Handler) GetTenantDetails(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("tenant", "access")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	tenantID, err := uuidParam(c, "tenantId", "tenant")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var tenant model.Tenant
	if err := h.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Tenant not found")
		}
		log.Error("Failed to load tenant", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to fetch tenant details")
	}

	if err := authz.Decide(p, authz.ActionTenantView, authz.TenantTarget(tenant.ID)); err != nil {
		log.Warn("Unauthorized tenant access attempt",
			zap.String("user_id", p.UserID.String()),
			zap.String("tenant_id", tenant.ID.String()))
		prometheus.RecordAuthError("cross_tenant_access")
		return response.FromError(c, err, "Access denied")
	}

	var totalUsers, totalProjects, totalTasks int64
	h.db.WithContext(ctx).Model(&model.User{}).Where("tenant_id = ?", tenant.ID).Count(&totalUsers)
	h.db.WithContext(ctx).Model(&model.Project{}).Where("tenant_id = ?", tenant.ID).Count(&totalProjects)
	h.db.WithContext(ctx).Model(&model.Task{}).Where("tenant_id = ?", tenant.ID).Count(&totalTasks)

	return response.OK(c, echo.Map{
		"id":                tenant.ID,
		"name":              tenant.Name,
		"subdomain":         tenant.Subdomain,
		"status":            tenant.Status,
		"subscription_plan": tenant.SubscriptionPlan,
		"max_users":         tenant.MaxUsers,
		"max_projects":      tenant.MaxProjects,
		"created_at":        tenant.CreatedAt,
		"stats": echo.Map{
			"total_users":    totalUsers,
			"total_projects": totalProjects,
			"total_tasks":    totalTasks,
		},
	})
}

// UpdateTenant lets a tenant_admin rename their own tenant; plan, status and
// limit fields are super_admin only.
func (h *Handler) UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("tenant", "update")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	tenantID, err := uuidParam(c, "tenantId", "tenant")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var req struct {
		Name             *string `json:"name"`
		Status           *string `json:"status"`
		SubscriptionPlan *string `json:"subscription_plan"`
		MaxUsers         *int    `json:"max_users"`
		MaxProjects      *int    `json:"max_projects"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant update request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var tenant model.Tenant
	if err := h.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "Tenant not found")
		}
		log.Error("Failed to load tenant", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to update tenant")
	}

	updates := map[string]interface{}{}

	subscriptionFields := req.Status != nil || req.SubscriptionPlan != nil ||
		req.MaxUsers != nil || req.MaxProjects != nil
	if subscriptionFields {
		if err := authz.Decide(p, authz.ActionTenantUpdateSubscription, authz.TenantTarget(tenant.ID)); err != nil {
			log.Warn("Subscription field update denied",
				zap.String("user_id", p.UserID.String()),
				zap.String("tenant_id", tenant.ID.String()))
			prometheus.RecordAuthError("forbidden")
			return response.FromError(c, err, "Access denied")
		}
		if req.Status != nil {
			if !model.TenantStatus(*req.Status).Valid() {
				return response.Error(c, http.StatusBadRequest, "Invalid tenant status")
			}
			updates["status"] = *req.Status
		}
		if req.SubscriptionPlan != nil {
			if !model.SubscriptionPlan(*req.SubscriptionPlan).Valid() {
				return response.Error(c, http.StatusBadRequest, "Invalid subscription plan")
			}
			updates["subscription_plan"] = *req.SubscriptionPlan
		}
		if req.MaxUsers != nil {
			if *req.MaxUsers < 1 {
				return response.Error(c, http.StatusBadRequest, "max_users must be positive")
			}
			updates["max_users"] = *req.MaxUsers
		}
		if req.MaxProjects != nil {
			if *req.MaxProjects < 1 {
				return response.Error(c, http.StatusBadRequest, "max_projects must be positive")
			}
			updates["max_projects"] = *req.MaxProjects
		}
	}

	if req.Name != nil {
		if err := authz.Decide(p, authz.ActionTenantUpdateName, authz.TenantTarget(tenant.ID)); err != nil {
			log.Warn("Tenant rename denied",
				zap.String("user_id", p.UserID.String()),
				zap.String("tenant_id", tenant.ID.String()))
			prometheus.RecordAuthError("forbidden")
			return response.FromError(c, err, "Access denied")
		}
		if *req.Name == "" {
			return response.Error(c, http.StatusBadRequest, "Name must not be empty")
		}
		updates["name"] = *req.Name
	}

	if len(updates) == 0 {
		return response.Error(c, http.StatusBadRequest, "No updatable fields provided")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.WithContext(ctx).Model(&tenant).Updates(updates).Error; err != nil {
		log.Error("Failed to update tenant", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to update tenant")
	}

	h.audit.Record(ctx, p, "tenant.update", "tenant", tenant.ID, c.RealIP())
	log.Info("Tenant updated", zap.String("tenant_id", tenant.ID.String()))

	return response.Updated(c, "Tenant updated successfully", echo.Map{
		"id":         tenant.ID,
		"name":       tenant.Name,
		"updated_at": tenant.UpdatedAt,
	})
}
