package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/metrics"
	"github.com/99minutos/identity-system/internal/core/domain"
)

// Context keys set by Auth for downstream handlers.
const (
	ContextKeyClaims = "claims"
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (*domain.Claims, error)
}

// Auth validates the bearer token and injects its claims into context.
func Auth(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultRejected).Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultRejected).Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				result := metrics.ResultRejected
				if errors.Is(err, domain.ErrTokenExpired) {
					result = metrics.ResultExpired
				}
				metrics.TokenValidationsTotal.WithLabelValues(result).Inc()

				msg := "invalid token"
				if errors.Is(err, domain.ErrAuthentication) {
					msg = err.Error()
				}
				return echo.NewHTTPError(http.StatusUnauthorized, msg).SetInternal(err)
			}
			metrics.TokenValidationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

			c.Set(ContextKeyClaims, claims)
			c.Set(ContextKeyUserID, claims.Subject)
			c.Set(ContextKeyRole, claims.Role)

			return next(c)
		}
	}
}

// ClaimsFrom returns the claims stored by Auth, or nil when Auth did not run.
func ClaimsFrom(c echo.Context) *domain.Claims {
	claims, _ := c.Get(ContextKeyClaims).(*domain.Claims)
	return claims
}
