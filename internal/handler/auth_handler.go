package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/pkg/jwtutil"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// RegisterTenant creates a new tenant on the free plan together with its
// first tenant_admin.
func (h *Handler) RegisterTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterTenantCounter.Inc()

	var req struct {
		TenantName    string `json:"tenant_name" validate:"required,max=100"`
		Subdomain     string `json:"subdomain" validate:"required,max=63"`
		AdminEmail    string `json:"admin_email" validate:"required,email"`
		AdminPassword string `json:"admin_password" validate:"required,min=8"`
		AdminFullName string `json:"admin_full_name" validate:"required,max=100"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant registration request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	// Subdomains are case-folded before the uniqueness check so "ACME"
	// conflicts with "acme".
	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))
	if !subdomainPattern.MatchString(subdomain) {
		return response.Error(c, http.StatusBadRequest, "Subdomain may only contain lowercase letters, digits and hyphens")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.Tenant
	err := h.db.WithContext(c.Request().Context()).
		First(&existing, "subdomain = ?", subdomain).Error
	if err == nil {
		log.Error("Subdomain already exists", zap.String("subdomain", subdomain))
		return response.Error(c, http.StatusConflict, "Subdomain already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error("Failed to check subdomain", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Tenant registration failed")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return response.Error(c, http.StatusInternalServerError, "Tenant registration failed")
	}

	tenant := model.Tenant{
		Name:             req.TenantName,
		Subdomain:        subdomain,
		Status:           model.TenantActive,
		SubscriptionPlan: model.PlanFree,
		MaxUsers:         model.FreePlanMaxUsers,
		MaxProjects:      model.FreePlanMaxProjects,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	var admin model.User
	txErr := h.db.WithContext(c.Request().Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		tenantID := tenant.ID
		admin = model.User{
			TenantID:     &tenantID,
			Email:        strings.ToLower(req.AdminEmail),
			PasswordHash: string(hashed),
			FullName:     req.AdminFullName,
			Role:         model.RoleTenantAdmin,
			IsActive:     true,
		}
		return tx.Create(&admin).Error
	})
	if txErr != nil {
		log.Error("Failed to register tenant", zap.Error(txErr))
		return response.Error(c, http.StatusInternalServerError, "Tenant registration failed")
	}

	h.audit.Record(c.Request().Context(), authz.Principal{UserID: admin.ID, TenantID: admin.TenantID, Role: admin.Role},
		"tenant.register", "tenant", tenant.ID, c.RealIP())

	log.Info("Tenant registered",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("subdomain", tenant.Subdomain))

	return response.Created(c, "Tenant registered successfully", echo.Map{
		"tenant_id": tenant.ID,
		"subdomain": tenant.Subdomain,
		"admin_user": echo.Map{
			"id":        admin.ID,
			"email":     admin.Email,
			"full_name": admin.FullName,
			"role":      admin.Role,
		},
	})
}

// Login authenticates a user inside a tenant identified by subdomain. When
// the subdomain is omitted the lookup targets platform accounts (tenant-less
// super_admin users) instead, so a wrong subdomain can never fall back to a
// cross-tenant match.
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required"`
		TenantSubdomain string `json:"tenant_subdomain"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return response.Error(c, http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.FromError(c, err, "Invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	ctx := c.Request().Context()
	email := strings.ToLower(req.Email)

	var user model.User
	if subdomain := strings.ToLower(strings.TrimSpace(req.TenantSubdomain)); subdomain != "" {
		var tenant model.Tenant
		err := h.db.WithContext(ctx).First(&tenant, "subdomain = ?", subdomain).Error
		if err != nil || tenant.Status != model.TenantActive {
			log.Error("Tenant not found or inactive", zap.String("subdomain", subdomain))
			prometheus.RecordAuthError("tenant_not_found")
			return response.Error(c, http.StatusNotFound, "Tenant not found or inactive")
		}

		// Tenant-scoped lookup: the same email under another tenant never
		// matches.
		if err := h.db.WithContext(ctx).
			First(&user, "email = ? AND tenant_id = ?", email, tenant.ID).Error; err != nil {
			log.Error("User not found in tenant", zap.String("email", email))
			prometheus.RecordAuthError("user_not_found")
			return response.Error(c, http.StatusUnauthorized, "Invalid credentials")
		}
	} else {
		if err := h.db.WithContext(ctx).
			First(&user, "email = ? AND tenant_id IS NULL AND role = ?", email, model.RoleSuperAdmin).Error; err != nil {
			log.Error("Platform user not found", zap.String("email", email))
			prometheus.RecordAuthError("user_not_found")
			return response.Error(c, http.StatusUnauthorized, "Invalid credentials")
		}
	}

	if !user.IsActive {
		log.Error("Login attempt for inactive user", zap.String("email", email))
		prometheus.RecordAuthError("user_inactive")
		return response.Error(c, http.StatusUnauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("email", email))
		prometheus.RecordAuthError("invalid_password")
		return response.Error(c, http.StatusUnauthorized, "Invalid credentials")
	}

	token, err := jwtutil.GenerateToken(&user)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return response.Error(c, http.StatusInternalServerError, "Login failed")
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)))

	return response.OK(c, echo.Map{
		"user": echo.Map{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
			"role":      user.Role,
			"tenant_id": user.TenantID,
		},
		"token":      token,
		"expires_in": jwtutil.Expiration(),
	})
}

// GetCurrentUser returns the authenticated user's profile with its tenant.
func (h *Handler) GetCurrentUser(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := principalFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Authentication required")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := h.db.WithContext(c.Request().Context()).
		First(&user, "id = ?", p.UserID).Error; err != nil {
		log.Error("User not found", zap.String("user_id", p.UserID.String()))
		return response.Error(c, http.StatusNotFound, "User not found")
	}

	var tenantData interface{}
	if user.TenantID != nil {
		var tenant model.Tenant
		if err := h.db.WithContext(c.Request().Context()).
			First(&tenant, "id = ?", user.TenantID).Error; err == nil {
			tenantData = echo.Map{
				"id":                tenant.ID,
				"name":              tenant.Name,
				"subdomain":         tenant.Subdomain,
				"subscription_plan": tenant.SubscriptionPlan,
				"max_users":         tenant.MaxUsers,
				"max_projects":      tenant.MaxProjects,
			}
		}
	}

	return response.OK(c, echo.Map{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
		"is_active": user.IsActive,
		"tenant":    tenantData,
	})
}

// Logout is stateless: the client discards the token.
func (h *Handler) Logout(c echo.Context) error {
	return response.Message(c, http.StatusOK, "Logged out successfully")
}
