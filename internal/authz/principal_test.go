package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

func TestScopeFor(t *testing.T) {
	t.Run("super_admin is unrestricted", func(t *testing.T) {
		scope, err := ScopeFor(Principal{UserID: uuid.New(), Role: model.RoleSuperAdmin})
		require.NoError(t, err)
		require.True(t, scope.Unrestricted())
	})

	t.Run("member is pinned to home tenant", func(t *testing.T) {
		home := uuid.New()
		scope, err := ScopeFor(Principal{UserID: uuid.New(), TenantID: &home, Role: model.RoleUser})
		require.NoError(t, err)
		require.False(t, scope.Unrestricted())
		require.Equal(t, home, scope.TenantID())
	})

	t.Run("tenant-less member is rejected", func(t *testing.T) {
		_, err := ScopeFor(Principal{UserID: uuid.New(), Role: model.RoleTenantAdmin})
		require.Error(t, err)
		appErr, ok := apperr.As(err)
		require.True(t, ok)
		require.Equal(t, 403, appErr.Status)
	})
}

func TestTenantScopeCovers(t *testing.T) {
	home := uuid.New()
	other := uuid.New()

	scoped, err := ScopeFor(Principal{UserID: uuid.New(), TenantID: &home, Role: model.RoleUser})
	require.NoError(t, err)

	require.True(t, scoped.Covers(ClaimedTenantID(home)))
	require.False(t, scoped.Covers(ClaimedTenantID(other)))

	require.True(t, scoped.CoversPtr(&home))
	require.False(t, scoped.CoversPtr(&other))
	require.False(t, scoped.CoversPtr(nil))

	unrestricted, err := ScopeFor(Principal{UserID: uuid.New(), Role: model.RoleSuperAdmin})
	require.NoError(t, err)

	require.True(t, unrestricted.Covers(ClaimedTenantID(other)))
	require.True(t, unrestricted.CoversPtr(nil))
	require.True(t, unrestricted.CoversPtr(&other))
}

func TestTenantScopeRequire(t *testing.T) {
	home := uuid.New()
	other := uuid.New()

	scoped, err := ScopeFor(Principal{UserID: uuid.New(), TenantID: &home, Role: model.RoleTenantAdmin})
	require.NoError(t, err)

	require.NoError(t, scoped.Require(ClaimedTenantID(home)))

	err = scoped.Require(ClaimedTenantID(other))
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, 403, appErr.Status)
	require.Equal(t, "Unauthorized tenant access", appErr.Message)

	unrestricted, err := ScopeFor(Principal{UserID: uuid.New(), Role: model.RoleSuperAdmin})
	require.NoError(t, err)
	require.NoError(t, unrestricted.Require(ClaimedTenantID(other)))
}
