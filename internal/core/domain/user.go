package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User models an authenticated actor in the system.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser builds a user with a fresh id and both timestamps set to now.
func NewUser(username, email, passwordHash string, role Role, now time.Time) *User {
	now = now.UTC()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasPermission reports whether the user's role grants permission.
func (u *User) HasPermission(permission string) bool {
	return u.Role.HasPermission(permission)
}

// Clone returns a copy safe to hand out from a shared store.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// ParseUserID converts the textual form of a user id.
func ParseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, ErrInvalidUserID
	}
	return id, nil
}
