package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskhub/internal/apperr"
	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/internal/quota"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

// AddUser creates a user inside the caller's tenant, subject to the
// subscription's user ceiling.
func (h *Handler) AddUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "create")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}
	scope, ok := scopeFrom(c)
	if !ok {
		return response.Error(c, http.StatusForbidden, "Tenant context missing")
	}

	claimed, err := claimedTenantParam(c)
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	// The path tenant id is untrusted; it never reaches a query or policy
	// target, only the scope comparison.
	if err := scope.Require(claimed); err != nil {
		log.Warn("User creation denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("claimed_tenant", claimed.UUID().String()))
		prometheus.RecordAuthError("cross_tenant_access")
		return response.FromError(c, err, "Access denied")
	}

	if err := authz.Decide(p, authz.ActionUserCreate, authz.TenantTarget(scope.TenantID())); err != nil {
		log.Warn("User creation denied", zap.String("user_id", p.UserID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		FullName string `json:"full_name" validate:"required,max=100"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user creation request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleUser
	}
	// super_admin accounts are never created through the tenant API.
	if role != model.RoleUser && role != model.RoleTenantAdmin {
		return response.Error(c, http.StatusBadRequest, "Invalid role")
	}

	ctx := c.Request().Context()
	tenantID := scope.TenantID()

	if err := h.quota.Check(ctx, tenantID, quota.ResourceUsers); err != nil {
		if e, ok := apperr.As(err); ok {
			log.Warn("User creation blocked", zap.String("reason", e.Message))
			prometheus.RecordQuotaRejection("users")
			return response.Error(c, e.Status, e.Message)
		}
		log.Error("Quota check failed", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create user")
	}

	email := strings.ToLower(req.Email)
	defer prometheus.TrackDBOperation("query")(time.Now())
	taken, err := h.emailTaken(ctx, tenantID, email)
	if err != nil {
		log.Error("Failed to check for existing email", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create user")
	}
	if taken {
		log.Error("Email already exists in tenant", zap.String("email", email))
		return response.Error(c, http.StatusConflict, "Email already exists in this tenant")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create user")
	}

	user := model.User{
		TenantID:     &tenantID,
		Email:        email,
		PasswordHash: string(hashed),
		FullName:     req.FullName,
		Role:         role,
		IsActive:     true,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to create user")
	}

	h.audit.Record(ctx, p, "user.create", "user", user.ID, c.RealIP())
	log.Info("User created",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenantID.String()))

	return response.Created(c, "User created successfully", echo.Map{
		"id":         user.ID,
		"email":      user.Email,
		"full_name":  user.FullName,
		"role":       user.Role,
		"tenant_id":  user.TenantID,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
	})
}

// ListUsers returns the users of the caller's tenant. All queries filter by
// the derived scope, never by the path parameter.
func (h *Handler) ListUsers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "list")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}
	scope, ok := scopeFrom(c)
	if !ok {
		return response.Error(c, http.StatusForbidden, "Tenant context missing")
	}

	claimed, err := claimedTenantParam(c)
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	if err := scope.Require(claimed); err != nil {
		log.Warn("User listing denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("claimed_tenant", claimed.UUID().String()))
		prometheus.RecordAuthError("cross_tenant_access")
		return response.FromError(c, err, "Access denied")
	}

	if err := authz.Decide(p, authz.ActionUserList, authz.TenantTarget(scope.TenantID())); err != nil {
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	page, limit, offset := paginate(c, 50)
	ctx := c.Request().Context()

	query := h.db.WithContext(ctx).Model(&model.User{}).Where("tenant_id = ?", scope.TenantID())
	if role := c.QueryParam("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if search := c.QueryParam("search"); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("Failed to count users", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list users")
	}

	var users []model.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		log.Error("Failed to list users", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to list users")
	}

	return response.OK(c, echo.Map{
		"users":      users,
		"total":      total,
		"pagination": paginationFor(page, limit, total),
	})
}

// UpdateUser handles both self-edits and administrative edits. The self
// branch is checked first and restricts the field set to full_name, even
// when the caller is also an admin.
func (h *Handler) UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "update")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	userID, err := uuidParam(c, "userId", "user")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	var req struct {
		FullName *string `json:"full_name"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user update request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var user model.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "User not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to update user")
	}

	updates := map[string]interface{}{}

	if user.ID == p.UserID {
		// Self-edit branch: full_name only, regardless of the caller's role.
		if err := authz.Decide(p, authz.ActionUserUpdateProfile, authz.Target{IsSelf: true}); err != nil {
			return response.FromError(c, err, "Access denied")
		}
		if req.Role != nil || req.IsActive != nil {
			log.Warn("Self-update attempted restricted fields", zap.String("user_id", p.UserID.String()))
			prometheus.RecordAuthError("forbidden")
			return response.Error(c, http.StatusForbidden, "You cannot update these fields")
		}
		if req.FullName != nil && *req.FullName != "" {
			updates["full_name"] = *req.FullName
		}
	} else {
		if err := authz.Decide(p, authz.ActionUserUpdateAdmin, authz.Target{TenantID: user.TenantID}); err != nil {
			log.Warn("User update denied",
				zap.String("user_id", p.UserID.String()),
				zap.String("target_user_id", user.ID.String()))
			prometheus.RecordAuthError("forbidden")
			return response.FromError(c, err, "Access denied")
		}
		if req.FullName != nil && *req.FullName != "" {
			updates["full_name"] = *req.FullName
		}
		if req.Role != nil {
			role := model.Role(*req.Role)
			if role != model.RoleUser && role != model.RoleTenantAdmin {
				return response.Error(c, http.StatusBadRequest, "Invalid role")
			}
			updates["role"] = role
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
	}

	if len(updates) > 0 {
		defer prometheus.TrackDBOperation("update")(time.Now())
		if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			log.Error("Failed to update user", zap.Error(err))
			return response.Error(c, http.StatusInternalServerError, "Failed to update user")
		}
	}

	h.audit.Record(ctx, p, "user.update", "user", user.ID, c.RealIP())

	return response.Updated(c, "User updated successfully", echo.Map{
		"id":         user.ID,
		"full_name":  user.FullName,
		"role":       user.Role,
		"is_active":  user.IsActive,
		"updated_at": user.UpdatedAt,
	})
}

// DeleteUser removes a user from the caller's tenant. Their assigned tasks
// are detached (assigned_to set to null) before the row is removed; the
// tasks themselves survive.
func (h *Handler) DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordEntityOperation("user", "delete")

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	userID, err := uuidParam(c, "userId", "user")
	if err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	var user model.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, http.StatusNotFound, "User not found")
		}
		log.Error("Failed to load user", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete user")
	}

	target := authz.Target{TenantID: user.TenantID, IsSelf: user.ID == p.UserID}
	if err := authz.Decide(p, authz.ActionUserDelete, target); err != nil {
		log.Warn("User deletion denied",
			zap.String("user_id", p.UserID.String()),
			zap.String("target_user_id", user.ID.String()))
		prometheus.RecordAuthError("forbidden")
		return response.FromError(c, err, "Access denied")
	}

	// Detach first, then delete. The two steps are not atomic; a crash in
	// between is what the reconciliation sweep exists for.
	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.WithContext(ctx).Model(&model.Task{}).
		Where("assigned_to = ?", user.ID).
		Update("assigned_to", nil).Error; err != nil {
		log.Error("Failed to detach task assignments", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete user")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := h.db.WithContext(ctx).Delete(&user).Error; err != nil {
		log.Error("Failed to delete user", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Failed to delete user")
	}

	h.audit.Record(ctx, p, "user.delete", "user", user.ID, c.RealIP())
	log.Info("User deleted",
		zap.String("deleted_user_id", user.ID.String()),
		zap.String("by_user_id", p.UserID.String()))

	return response.Message(c, http.StatusOK, "User deleted successfully")
}

// emailTaken reports whether the email is already used inside the tenant.
// Only a definitive not-found counts as free; any other lookup failure is
// surfaced so an infra error cannot slip past the uniqueness check.
func (h *Handler) emailTaken(ctx context.Context, tenantID uuid.UUID, email string) (bool, error) {
	var existing model.User
	err := h.db.WithContext(ctx).
		First(&existing, "tenant_id = ? AND email = ?", tenantID, email).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}
