package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"taskhub/internal/model"
)

func registerBody(subdomain, email string) map[string]any {
	return map[string]any{
		"tenant_name":     "Acme Corp",
		"subdomain":       subdomain,
		"admin_email":     email,
		"admin_password":  "s3cret-pass",
		"admin_full_name": "Admin Person",
	}
}

func TestRegisterTenant(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/register-tenant", "",
		registerBody("acme", "admin@acme.test"))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	require.True(t, body.Success)
	require.Equal(t, "Tenant registered successfully", body.Message)

	var tenant model.Tenant
	require.NoError(t, env.db.First(&tenant, "subdomain = ?", "acme").Error)
	require.Equal(t, model.PlanFree, tenant.SubscriptionPlan)
	require.Equal(t, model.TenantActive, tenant.Status)
	require.Equal(t, model.FreePlanMaxUsers, tenant.MaxUsers)
	require.Equal(t, model.FreePlanMaxProjects, tenant.MaxProjects)

	var admin model.User
	require.NoError(t, env.db.First(&admin, "tenant_id = ?", tenant.ID).Error)
	require.Equal(t, model.RoleTenantAdmin, admin.Role)
	require.Equal(t, "admin@acme.test", admin.Email)
	require.True(t, admin.IsActive)
}

func TestRegisterTenant_SubdomainConflictIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/auth/register-tenant", "",
		registerBody("acme", "admin@acme.test"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/auth/register-tenant", "",
		registerBody("ACME", "other@acme.test"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Subdomain already exists", decode(t, rec).Message)

	require.EqualValues(t, 1, env.countWhere(t, &model.Tenant{}, "subdomain = ?", "acme"))
}

func TestRegisterTenant_InvalidSubdomain(t *testing.T) {
	env := newTestEnv(t)

	for _, bad := range []string{"has space", "under_score", "-leading", "trailing-", "dots.too"} {
		rec := env.request(t, http.MethodPost, "/api/auth/register-tenant", "",
			registerBody(bad, "admin@acme.test"))
		require.Equal(t, http.StatusBadRequest, rec.Code, "subdomain %q", bad)
	}
}

func TestRegisterTenant_ValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	body := registerBody("acme", "not-an-email")
	rec := env.request(t, http.MethodPost, "/api/auth/register-tenant", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = registerBody("acme", "admin@acme.test")
	body["admin_password"] = "short"
	rec = env.request(t, http.MethodPost, "/api/auth/register-tenant", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_TenantScoped(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleTenantAdmin, "s3cret-pass")

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "s3cret-pass",
		"tenant_subdomain": "acme",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, rec)
	require.NotEmpty(t, data["token"])
	require.EqualValues(t, 3600, data["expires_in"])
	userData := data["user"].(map[string]any)
	require.Equal(t, user.Email, userData["email"])
	require.Equal(t, string(model.RoleTenantAdmin), userData["role"])
}

func TestLogin_WrongTenantSubdomain(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")

	// unknown subdomain: 404 before any credential check
	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "s3cret-pass",
		"tenant_subdomain": "nosuch",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Tenant not found or inactive", decode(t, rec).Message)

	// right credentials under the wrong tenant: never matches
	env.seedTenant(t, "other", 5, 3)
	rec = env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "s3cret-pass",
		"tenant_subdomain": "other",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid credentials", decode(t, rec).Message)
}

func TestLogin_SuspendedTenant(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")
	require.NoError(t, env.db.Model(&tenant).Update("status", model.TenantSuspended).Error)

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "s3cret-pass",
		"tenant_subdomain": "acme",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Tenant not found or inactive", decode(t, rec).Message)
}

func TestLogin_BadPassword(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "wrong-pass",
		"tenant_subdomain": "acme",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid credentials", decode(t, rec).Message)
}

func TestLogin_InactiveUser(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")
	require.NoError(t, env.db.Model(&user).Update("is_active", false).Error)

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":            user.Email,
		"password":         "s3cret-pass",
		"tenant_subdomain": "acme",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_PlatformAccountWithoutSubdomain(t *testing.T) {
	env := newTestEnv(t)
	super := env.seedUser(t, nil, model.RoleSuperAdmin, "s3cret-pass")

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    super.Email,
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, rec)
	userData := data["user"].(map[string]any)
	require.Equal(t, string(model.RoleSuperAdmin), userData["role"])
	require.Nil(t, userData["tenant_id"])
}

func TestLogin_TenantUserCannotSkipSubdomain(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")

	rec := env.request(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    user.Email,
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")
	token := env.tokenFor(t, user)

	rec := env.request(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, rec)
	require.Equal(t, user.Email, data["email"])
	tenantData := data["tenant"].(map[string]any)
	require.Equal(t, "acme", tenantData["subdomain"])
}

func TestGetCurrentUser_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	tenant := env.seedTenant(t, "acme", 5, 3)
	user := env.seedUser(t, &tenant.ID, model.RoleUser, "s3cret-pass")
	token := env.tokenFor(t, user)

	rec := env.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Logged out successfully", decode(t, rec).Message)
}
