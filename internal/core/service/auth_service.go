package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// DefaultTokenTTL is the lifetime of tokens issued at login.
const DefaultTokenTTL = time.Hour

// AuthService implements registration, login and token checks.
type AuthService struct {
	repo     ports.UserRepository
	hasher   ports.PasswordHasher
	tokens   ports.TokenService
	tokenTTL time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenService,
	tokenTTL time.Duration,
	log zerolog.Logger,
	opts ...Option,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	o := buildOptions(opts)
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		log:      log,
		now:      o.now,
	}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.UserSummary, error) {
	username, email, err := normalizeCredentials(in.Username, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	role := domain.RoleUser
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, domain.ErrInvalidRole
		}
		role = *in.Role
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := domain.NewUser(username, email, hash, role, s.now())
	// The store re-checks uniqueness atomically; a concurrent register that
	// slipped past ensureAvailable fails here.
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Str("role", user.Role.String()).
		Msg("user registered")

	return &ports.UserSummary{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.TokenResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Debug().Str("username", username).Msg("login rejected: unknown user")
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Debug().Str("username", username).Msg("login rejected: wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(user.ID.String(), user.Role, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &ports.TokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		UserID:    user.ID.String(),
		Username:  user.Username,
		Role:      user.Role,
	}, nil
}

func (s *AuthService) ValidateToken(token string) (*domain.Claims, error) {
	return s.tokens.Validate(token)
}

func (s *AuthService) Authorize(caller, required domain.Role) bool {
	return domain.Authorize(caller, required)
}

// ensureAvailable fails if username or email is already held.
func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	return checkAvailable(ctx, s.repo, username, email, nil)
}

// checkAvailable reports a conflict when username or email belongs to a user
// other than self. Empty values are skipped.
func checkAvailable(ctx context.Context, repo ports.UserRepository, username, email string, self *domain.User) error {
	if username != "" {
		existing, err := repo.FindByUsername(ctx, username)
		switch {
		case err == nil:
			if self == nil || existing.ID != self.ID {
				return domain.ErrUsernameTaken
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	if email != "" {
		existing, err := repo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if self == nil || existing.ID != self.ID {
				return domain.ErrEmailTaken
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}
