package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskhub/internal/authz"
	"taskhub/internal/model"
	"taskhub/pkg/jwtutil"
	"taskhub/pkg/logger"
	"taskhub/pkg/response"
	"taskhub/prometheus"
)

const principalKey = "principal"

// Authenticate resolves the request's principal: it validates the bearer
// token and re-loads the user so a token issued before deactivation or
// deletion stops working immediately. The role and tenant stored in the
// context come from this lookup, never from request input.
func Authenticate(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Error("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return response.Error(c, http.StatusUnauthorized, "Authentication token missing")
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Error("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return response.Error(c, http.StatusUnauthorized, "Invalid authorization format, expected Bearer token")
			}

			claims, err := jwtutil.ValidateToken(parts[1])
			if err != nil {
				log.Error("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return response.Error(c, http.StatusUnauthorized, "Invalid or expired token")
			}

			// Stale-token defense: the user must still exist and be active.
			var user model.User
			if err := db.WithContext(c.Request().Context()).
				First(&user, "id = ?", claims.UserID).Error; err != nil || !user.IsActive {
				log.Error("User not found or inactive", zap.String("user_id", claims.UserID.String()))
				prometheus.RecordAuthError("stale_token")
				return response.Error(c, http.StatusUnauthorized, "User not found or inactive")
			}

			c.Set(principalKey, authz.Principal{
				UserID:   user.ID,
				TenantID: user.TenantID,
				Role:     user.Role,
			})

			return next(c)
		}
	}
}

// PrincipalFrom returns the principal resolved by Authenticate.
func PrincipalFrom(c echo.Context) (authz.Principal, bool) {
	p, ok := c.Get(principalKey).(authz.Principal)
	return p, ok
}
