package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"taskhub/internal/model"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

// RequireRoles rejects requests whose principal holds none of the given
// roles. Finer-grained decisions (ownership, target tenant) stay with the
// policy gate; this is only the coarse route-level cut.
func RequireRoles(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			p, ok := PrincipalFrom(c)
			if !ok {
				return response.Error(c, http.StatusUnauthorized, "Authentication required")
			}

			for _, role := range roles {
				if p.Role == role {
					return next(c)
				}
			}

			log.Warn("Role not permitted for route",
				zap.String("user_id", p.UserID.String()),
				zap.String("role", string(p.Role)))
			prometheus.RecordAuthError("forbidden_role")
			return response.Error(c, http.StatusForbidden, "Access denied")
		}
	}
}
