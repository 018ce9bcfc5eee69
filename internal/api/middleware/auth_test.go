package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/core/domain"
)

type stubValidator struct {
	validateFn func(token string) (*domain.Claims, error)
}

func (s *stubValidator) ValidateToken(token string) (*domain.Claims, error) {
	return s.validateFn(token)
}

func acceptToken(want string, claims *domain.Claims) *stubValidator {
	return &stubValidator{validateFn: func(token string) (*domain.Claims, error) {
		if token != want {
			return nil, domain.ErrTokenMalformed
		}
		return claims, nil
	}}
}

func runAuth(t *testing.T, v TokenValidator, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(v)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := echo.New()
	claims := &domain.Claims{
		Subject:   "8d7f6a1e-3b52-4c0a-9d55-2c8f0e7a1b11",
		Role:      domain.RoleManager,
		IssuedAt:  time.Unix(1_700_000_000, 0),
		ExpiresAt: time.Unix(1_700_003_600, 0),
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(acceptToken("good-token", claims))(func(c echo.Context) error {
		called = true
		if c.Get(ContextKeyUserID) != claims.Subject {
			t.Fatalf("user_id not set")
		}
		if c.Get(ContextKeyRole) != domain.RoleManager {
			t.Fatalf("role not set")
		}
		if ClaimsFrom(c) != claims {
			t.Fatalf("claims not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	v := acceptToken("tok", &domain.Claims{Subject: "u", Role: domain.RoleUser})
	rec, called := runAuth(t, v, "bearer tok")
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	v := &stubValidator{validateFn: func(string) (*domain.Claims, error) {
		t.Fatalf("validator should not be called")
		return nil, nil
	}}
	rec, called := runAuth(t, v, "")
	if called {
		t.Fatalf("should not reach next")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_InvalidHeaderFormat(t *testing.T) {
	v := acceptToken("abc", &domain.Claims{Subject: "u", Role: domain.RoleUser})
	for _, header := range []string{"Token abc", "Bearer", "Bearer    ", "abc"} {
		rec, called := runAuth(t, v, header)
		if called {
			t.Fatalf("%q: should not reach next", header)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	cases := map[string]error{
		"malformed": domain.ErrTokenMalformed,
		"expired":   domain.ErrTokenExpired,
		"other":     errors.New("boom"),
	}
	for name, verr := range cases {
		verr := verr
		v := &stubValidator{validateFn: func(string) (*domain.Claims, error) { return nil, verr }}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		c := e.NewContext(req, httptest.NewRecorder())

		err := Auth(v)(func(c echo.Context) error {
			t.Fatalf("%s: should not reach next", name)
			return nil
		})(c)

		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 HTTPError, got %v", name, err)
		}
		if !errors.Is(he.Internal, verr) {
			t.Fatalf("%s: cause not kept", name)
		}
		if name == "expired" && he.Message != "token expired" {
			t.Fatalf("unexpected message: %v", he.Message)
		}
		if name == "other" && he.Message != "invalid token" {
			t.Fatalf("unexpected message: %v", he.Message)
		}
	}
}
