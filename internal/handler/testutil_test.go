package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taskhub/internal/audit"
	"taskhub/internal/model"
	"taskhub/internal/quota"
	"taskhub/pkg/config"
	"taskhub/pkg/jwtutil"
	"taskhub/pkg/validate"
)

// testEnv is a full service instance against an in-memory database.
type testEnv struct {
	e  *echo.Echo
	db *gorm.DB
	h  *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "handler-test-key", ExpirationHours: 1})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Tenant{}, &model.User{}, &model.Project{}, &model.Task{}, &model.AuditLog{}))

	e := echo.New()
	e.Validator = validate.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("logger", zap.NewNop())
			return next(c)
		}
	})

	h := New(db, quota.NewEnforcer(db), audit.NewRecorder(db, zap.NewNop()))
	Register(e, h, db)

	return &testEnv{e: e, db: db, h: h}
}

func (env *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors the response wire shape for assertions.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func dataMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	env := decode(t, rec)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

var emailSeq int

func nextEmail(prefix string) string {
	emailSeq++
	return fmt.Sprintf("%s%d@test.local", prefix, emailSeq)
}

// MinCost keeps the fixtures fast; production uses DefaultCost.
func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hashed)
}

func (env *testEnv) seedTenant(t *testing.T, subdomain string, maxUsers, maxProjects int) model.Tenant {
	t.Helper()
	tenant := model.Tenant{
		Name:             subdomain + " inc",
		Subdomain:        subdomain,
		Status:           model.TenantActive,
		SubscriptionPlan: model.PlanFree,
		MaxUsers:         maxUsers,
		MaxProjects:      maxProjects,
	}
	require.NoError(t, env.db.Create(&tenant).Error)
	return tenant
}

func (env *testEnv) seedUser(t *testing.T, tenantID *uuid.UUID, role model.Role, password string) model.User {
	t.Helper()
	user := model.User{
		TenantID:     tenantID,
		Email:        nextEmail(string(role)),
		PasswordHash: hashPassword(t, password),
		FullName:     "Seeded " + string(role),
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, env.db.Create(&user).Error)
	return user
}

func (env *testEnv) tokenFor(t *testing.T, user model.User) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(&user)
	require.NoError(t, err)
	return token
}

func (env *testEnv) seedProject(t *testing.T, tenantID, createdBy uuid.UUID, name string) model.Project {
	t.Helper()
	project := model.Project{
		TenantID:  tenantID,
		Name:      name,
		Status:    model.ProjectActive,
		CreatedBy: createdBy,
	}
	require.NoError(t, env.db.Create(&project).Error)
	return project
}

func (env *testEnv) seedTask(t *testing.T, project model.Project, title string, assignedTo *uuid.UUID) model.Task {
	t.Helper()
	task := model.Task{
		TenantID:   project.TenantID,
		ProjectID:  project.ID,
		Title:      title,
		Status:     model.TaskTodo,
		Priority:   model.PriorityMedium,
		AssignedTo: assignedTo,
	}
	require.NoError(t, env.db.Create(&task).Error)
	return task
}

func (env *testEnv) countWhere(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(m).Where(query, args...).Count(&count).Error)
	return count
}
