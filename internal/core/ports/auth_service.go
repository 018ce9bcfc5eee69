package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	UserID    string      `json:"user_id"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
}

// RegisterInput carries a self-registration request. A nil Role means the
// default role.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     *domain.Role
}

// UserSummary is the public view of a newly registered user.
type UserSummary struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*TokenResponse, error)
	Register(ctx context.Context, in RegisterInput) (*UserSummary, error)
	ValidateToken(token string) (*domain.Claims, error)
	Authorize(caller, required domain.Role) bool
}
