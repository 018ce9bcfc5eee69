package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// UserDetail is the management view of a user record.
type UserDetail struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CreateUserInput is used by privileged callers; the role is mandatory.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// UpdateUserInput changes any subset of fields; nil means unchanged.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Password *string
	Role     *domain.Role
}

// UserService defines user management operations.
type UserService interface {
	GetUser(ctx context.Context, id string) (*UserDetail, error)
	ListUsers(ctx context.Context) ([]UserDetail, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*UserDetail, error)
	UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*UserDetail, error)
	DeleteUser(ctx context.Context, id string) error
}
