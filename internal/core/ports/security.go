package ports

import (
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// PasswordHasher is a one-way, salted password transform.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns false with a nil error on mismatch; an error means the
	// stored hash is not usable.
	Verify(plaintext, hash string) (bool, error)
}

// TokenService issues and validates signed bearer tokens.
type TokenService interface {
	Issue(subject string, role domain.Role, ttl time.Duration) (string, domain.Claims, error)
	Validate(token string) (*domain.Claims, error)
}
