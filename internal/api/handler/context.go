package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/api/middleware"
	"github.com/99minutos/identity-system/internal/core/domain"
)

// ctxClaims returns the claims injected by the Auth middleware. Their absence
// means the route was mounted without Auth; reject rather than guess.
func ctxClaims(c echo.Context) (*domain.Claims, error) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil || claims.Subject == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return claims, nil
}

// optionalRole parses a role from a request body. Empty means not supplied.
func optionalRole(s string) (*domain.Role, error) {
	if s == "" {
		return nil, nil
	}
	r, err := domain.ParseRole(s)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
