package handler

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"taskhub/internal/apperr"
	"taskhub/internal/audit"
	"taskhub/internal/authz"
	"taskhub/internal/middleware"
	"taskhub/internal/quota"
)

// Handler carries the storage handle and collaborators into every endpoint.
// The handle is injected at wiring time; no package-level connection exists.
type Handler struct {
	db    *gorm.DB
	quota *quota.Enforcer
	audit *audit.Recorder
}

func New(db *gorm.DB, q *quota.Enforcer, a *audit.Recorder) *Handler {
	return &Handler{db: db, quota: q, audit: a}
}

var (
	notFoundTask      = apperr.NotFound("Task not found")
	errAssigneeTenant = apperr.Validation("Assigned user must belong to same tenant")
)

// pagination is the list-endpoint envelope fragment.
type pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int64 `json:"total_pages"`
	Limit       int   `json:"limit"`
}

func paginate(c echo.Context, defaultLimit int) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit, (page - 1) * limit
}

func paginationFor(page, limit int, total int64) pagination {
	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}
	return pagination{CurrentPage: page, TotalPages: totalPages, Limit: limit}
}

func principalFrom(c echo.Context) (authz.Principal, bool) {
	return middleware.PrincipalFrom(c)
}

func scopeFrom(c echo.Context) (authz.TenantScope, bool) {
	return middleware.ScopeFrom(c)
}

func uuidParam(c echo.Context, name, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid " + what + " ID")
	}
	return id, nil
}

// claimedTenantParam parses the path tenant id into its untrusted type.
// It stays a ClaimedTenantID until TenantScope.Require admits it, so a
// caller-supplied tenant id cannot reach a query or policy target as a
// bare uuid.
func claimedTenantParam(c echo.Context) (authz.ClaimedTenantID, error) {
	id, err := uuidParam(c, "tenantId", "tenant")
	if err != nil {
		return authz.ClaimedTenantID{}, err
	}
	return authz.ClaimedTenantID(id), nil
}
