package service

import (
	"strings"
	"time"

	"github.com/99minutos/identity-system/internal/core/domain"
	"github.com/99minutos/identity-system/internal/core/ports"
)

// maxPasswordBytes is the longest password the hasher accepts.
const maxPasswordBytes = 72

// Option configures a service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// normalizeCredentials trims identifiers and checks that nothing required is
// missing. Passwords are taken verbatim.
func normalizeCredentials(username, email, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return "", "", domain.ErrMissingField
	}
	if len(password) > maxPasswordBytes {
		return "", "", domain.ErrPasswordLength
	}
	return username, email, nil
}

func toDetail(u *domain.User) *ports.UserDetail {
	return &ports.UserDetail{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
