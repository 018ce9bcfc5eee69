package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// UserService manages user records on behalf of privileged callers.
type UserService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	log    zerolog.Logger
	now    func() time.Time
}

var _ ports.UserService = (*UserService)(nil)

func NewUserService(repo ports.UserRepository, hasher ports.PasswordHasher, log zerolog.Logger, opts ...Option) *UserService {
	o := buildOptions(opts)
	return &UserService{repo: repo, hasher: hasher, log: log, now: o.now}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*ports.UserDetail, error) {
	uid, err := domain.ParseUserID(id)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return toDetail(u), nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]ports.UserDetail, error) {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ports.UserDetail, 0, len(users))
	for _, u := range users {
		out = append(out, *toDetail(u))
	}
	return out, nil
}

func (s *UserService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*ports.UserDetail, error) {
	username, email, err := normalizeCredentials(in.Username, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	if err := checkAvailable(ctx, s.repo, username, email, nil); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := domain.NewUser(username, email, hash, in.Role, s.now())
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Str("role", user.Role.String()).Msg("user created")
	return toDetail(user), nil
}

func (s *UserService) UpdateUser(ctx context.Context, id string, in ports.UpdateUserInput) (*ports.UserDetail, error) {
	uid, err := domain.ParseUserID(id)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	var newUsername, newEmail string
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		if v == "" {
			return nil, domain.NewError(domain.ErrValidation, "username must not be empty")
		}
		if v != user.Username {
			newUsername = v
		}
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		if v == "" {
			return nil, domain.NewError(domain.ErrValidation, "email must not be empty")
		}
		if v != user.Email {
			newEmail = v
		}
	}
	if in.Role != nil && !in.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, domain.NewError(domain.ErrValidation, "password must not be empty")
		}
		if len(*in.Password) > maxPasswordBytes {
			return nil, domain.ErrPasswordLength
		}
	}

	// Check before hashing so a conflict does not pay the work factor.
	if err := checkAvailable(ctx, s.repo, newUsername, newEmail, user); err != nil {
		return nil, err
	}

	if newUsername != "" {
		user.Username = newUsername
	}
	if newEmail != "" {
		user.Email = newEmail
	}
	if in.Role != nil {
		user.Role = *in.Role
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Msg("user updated")
	return toDetail(user), nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	uid, err := domain.ParseUserID(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, uid); err != nil {
		return err
	}
	s.log.Info().Str("user_id", uid.String()).Msg("user deleted")
	return nil
}
