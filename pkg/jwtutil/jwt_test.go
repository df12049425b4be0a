package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"taskhub/internal/model"
	"taskhub/pkg/config"
)

func initTestKey() {
	Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 1})
}

func TestGenerateAndValidateToken(t *testing.T) {
	initTestKey()

	tenantID := uuid.New()
	user := &model.User{
		ID:       uuid.New(),
		TenantID: &tenantID,
		Email:    "admin@acme.test",
		Role:     model.RoleTenantAdmin,
	}

	token, err := GenerateToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.NotNil(t, claims.TenantID)
	require.Equal(t, tenantID, *claims.TenantID)
	require.Equal(t, model.RoleTenantAdmin, claims.Role)
	require.Equal(t, "admin@acme.test", claims.Email)
}

func TestGenerateToken_SuperAdminHasNoTenant(t *testing.T) {
	initTestKey()

	user := &model.User{
		ID:    uuid.New(),
		Email: "root@platform.test",
		Role:  model.RoleSuperAdmin,
	}

	token, err := GenerateToken(user)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	require.Nil(t, claims.TenantID)
	require.Equal(t, model.RoleSuperAdmin, claims.Role)
}

func TestValidateToken_RejectsTamperedSignature(t *testing.T) {
	initTestKey()

	user := &model.User{ID: uuid.New(), Email: "a@b.test", Role: model.RoleUser}
	token, err := GenerateToken(user)
	require.NoError(t, err)

	_, err = ValidateToken(token + "x")
	require.Error(t, err)
}

func TestValidateToken_RejectsWrongKey(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "first-key", ExpirationHours: 1})
	user := &model.User{ID: uuid.New(), Email: "a@b.test", Role: model.RoleUser}
	token, err := GenerateToken(user)
	require.NoError(t, err)

	Initialize(&config.JWTConfig{SigningKey: "second-key", ExpirationHours: 1})
	_, err = ValidateToken(token)
	require.Error(t, err)
}

func TestValidateToken_RejectsExpired(t *testing.T) {
	initTestKey()

	claims := UserClaims{
		UserID: uuid.New(),
		Role:   model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = ValidateToken(token)
	require.Error(t, err)
}

func TestExpiration(t *testing.T) {
	Initialize(&config.JWTConfig{SigningKey: "k", ExpirationHours: 2})
	require.Equal(t, int64(7200), Expiration())
}
