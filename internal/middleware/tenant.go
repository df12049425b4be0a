package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"taskhub/internal/authz"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
)

const scopeKey = "tenant_scope"

// TenantScope derives the effective tenant scope from the principal and
// stores it in the context. Handlers must filter every query through the
// scope; tenant ids from the path or body are only ever compared against
// it.
func TenantScope(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		p, ok := PrincipalFrom(c)
		if !ok {
			log.Error("Principal missing from context")
			return response.Error(c, http.StatusUnauthorized, "Authentication required")
		}

		scope, err := authz.ScopeFor(p)
		if err != nil {
			log.Error("Failed to derive tenant scope", zap.String("user_id", p.UserID.String()))
			return response.FromError(c, err, "Tenant context missing")
		}

		c.Set(scopeKey, scope)
		return next(c)
	}
}

// ScopeFrom returns the scope derived by TenantScope.
func ScopeFrom(c echo.Context) (authz.TenantScope, bool) {
	s, ok := c.Get(scopeKey).(authz.TenantScope)
	return s, ok
}
