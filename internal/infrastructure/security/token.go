package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// tokenClaims is the JWT payload: exactly sub, iat, exp and role.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService signs and validates HS256 bearer tokens.
type JWTService struct {
	secret []byte
	now    func() time.Time
}

// TokenOption configures a JWTService.
type TokenOption func(*JWTService)

// WithClock replaces the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *JWTService) { s.now = now }
}

// NewJWTService returns a token service signing with secret.
func NewJWTService(secret []byte, opts ...TokenOption) (*JWTService, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	s := &JWTService{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints a token for subject valid for ttl from now.
func (s *JWTService) Issue(subject string, role domain.Role, ttl time.Duration) (string, domain.Claims, error) {
	if subject == "" {
		return "", domain.Claims{}, domain.NewError(domain.ErrValidation, "token subject is required")
	}
	if !role.Valid() {
		return "", domain.Claims{}, domain.ErrInvalidRole
	}

	iat := time.Unix(s.now().Unix(), 0).UTC()
	exp := iat.Add(ttl.Truncate(time.Second))

	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, domain.Claims{Subject: subject, Role: role, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Validate verifies the signature and expiry of token and returns its claims.
func (s *JWTService) Validate(token string) (*domain.Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
		// exp is inclusive at second precision; the explicit check below is authoritative.
		jwt.WithLeeway(time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenMalformed
	}

	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, domain.ErrTokenMalformed
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}

	out := &domain.Claims{
		Subject:   claims.Subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	}
	if out.ExpiredAt(s.now()) {
		return nil, domain.ErrTokenExpired
	}
	return out, nil
}
