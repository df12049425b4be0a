package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/pkg/config"
	"taskhub/pkg/jwtutil"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Tenant{}, &model.User{}))
	return db
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("logger", zap.NewNop())
			return next(c)
		}
	})
	return e
}

func seedUser(t *testing.T, db *gorm.DB, role model.Role, tenantID *uuid.UUID, active bool) model.User {
	t.Helper()
	user := model.User{
		TenantID:     tenantID,
		Email:        uuid.NewString()[:8] + "@test.local",
		PasswordHash: "x",
		FullName:     "Test User",
		Role:         role,
		IsActive:     active,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func runAuthenticated(t *testing.T, db *gorm.DB, authHeader string) (*httptest.ResponseRecorder, *authz.Principal) {
	t.Helper()
	e := newEcho()

	var got *authz.Principal
	e.GET("/probe", func(c echo.Context) error {
		if p, ok := PrincipalFrom(c); ok {
			got = &p
		}
		return c.NoContent(http.StatusOK)
	}, Authenticate(db))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, got
}

func TestAuthenticate_ValidToken(t *testing.T) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "mw-test-key", ExpirationHours: 1})
	db := newTestDB(t)

	tenantID := uuid.New()
	user := seedUser(t, db, model.RoleTenantAdmin, &tenantID, true)
	token, err := jwtutil.GenerateToken(&user)
	require.NoError(t, err)

	rec, p := runAuthenticated(t, db, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, p)
	require.Equal(t, user.ID, p.UserID)
	require.Equal(t, model.RoleTenantAdmin, p.Role)
	require.NotNil(t, p.TenantID)
	require.Equal(t, tenantID, *p.TenantID)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	db := newTestDB(t)
	rec, _ := runAuthenticated(t, db, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.Equal(t, "Authentication token missing", body["message"])
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	db := newTestDB(t)
	rec, _ := runAuthenticated(t, db, "Token abc")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "mw-test-key", ExpirationHours: 1})
	db := newTestDB(t)
	rec, _ := runAuthenticated(t, db, "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_DeactivatedUserTokenStopsWorking(t *testing.T) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "mw-test-key", ExpirationHours: 1})
	db := newTestDB(t)

	tenantID := uuid.New()
	user := seedUser(t, db, model.RoleUser, &tenantID, true)
	token, err := jwtutil.GenerateToken(&user)
	require.NoError(t, err)

	// token is still cryptographically valid after deactivation
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	rec, _ := runAuthenticated(t, db, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "User not found or inactive", body["message"])
}

func TestAuthenticate_DeletedUserTokenStopsWorking(t *testing.T) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "mw-test-key", ExpirationHours: 1})
	db := newTestDB(t)

	tenantID := uuid.New()
	user := seedUser(t, db, model.RoleUser, &tenantID, true)
	token, err := jwtutil.GenerateToken(&user)
	require.NoError(t, err)

	require.NoError(t, db.Delete(&model.User{}, "id = ?", user.ID).Error)

	rec, _ := runAuthenticated(t, db, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantScope_SetsScopeFromPrincipal(t *testing.T) {
	e := newEcho()
	tenantID := uuid.New()

	var scope authz.TenantScope
	e.GET("/probe", func(c echo.Context) error {
		s, ok := ScopeFrom(c)
		require.True(t, ok)
		scope = s
		return c.NoContent(http.StatusOK)
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("principal", authz.Principal{UserID: uuid.New(), TenantID: &tenantID, Role: model.RoleUser})
			return next(c)
		}
	}, TenantScope)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, scope.Unrestricted())
	require.Equal(t, tenantID, scope.TenantID())
}

func TestRequireRoles(t *testing.T) {
	e := newEcho()
	tenantID := uuid.New()

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	withRole := func(role model.Role) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.Set("principal", authz.Principal{UserID: uuid.New(), TenantID: &tenantID, Role: role})
				return next(c)
			}
		}
	}

	e.GET("/admin-ok", handler, withRole(model.RoleTenantAdmin), RequireRoles(model.RoleTenantAdmin, model.RoleSuperAdmin))
	e.GET("/user-denied", handler, withRole(model.RoleUser), RequireRoles(model.RoleTenantAdmin))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin-ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user-denied", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
