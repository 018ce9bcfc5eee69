package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
)

// Authorizer decides whether a caller role satisfies a required role.
type Authorizer interface {
	Authorize(caller, required domain.Role) bool
}

// RequireRole admits callers whose role satisfies required. Must run after Auth.
func RequireRole(authz Authorizer, required domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}

			allowed := authz.Authorize(claims.Role, required)
			metrics.AuthorizationDecisionsTotal.WithLabelValues(required.String(), metrics.Decision(allowed)).Inc()
			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, domain.ErrInsufficientRole.Error())
			}
			return next(c)
		}
	}
}

// RequirePermission admits callers whose role grants permission.
func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}

			allowed := claims.Role.HasPermission(permission)
			metrics.AuthorizationDecisionsTotal.WithLabelValues(permission, metrics.Decision(allowed)).Inc()
			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, domain.ErrInsufficientRole.Error())
			}
			return next(c)
		}
	}
}
