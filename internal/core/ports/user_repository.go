package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// UserRepository is the persistence contract for user records.
//
// Create and Update must check that no other user holds the candidate username
// or email and write the record as one indivisible step. On conflict they
// return domain.ErrUsernameTaken or domain.ErrEmailTaken and leave the store
// untouched. Lookups of absent records return domain.ErrUserNotFound. Backend
// failures wrap domain.ErrRepository.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindAll(ctx context.Context) ([]*domain.User, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
