package domain

import "errors"

// Error categories. Every error returned by the core wraps exactly one of
// these so transports can map them with errors.Is.
var (
	ErrAuthentication = errors.New("unauthorized")
	ErrAuthorization  = errors.New("forbidden")
	ErrValidation     = errors.New("bad request")
	ErrNotFound       = errors.New("not found")
	ErrRepository     = errors.New("repository failure")
	ErrHashing        = errors.New("password hashing failure")
)

// Specific errors.
var (
	ErrInvalidCredentials = NewError(ErrAuthentication, "invalid username or password")
	ErrTokenMalformed     = NewError(ErrAuthentication, "malformed token")
	ErrTokenExpired       = NewError(ErrAuthentication, "token expired")

	ErrInsufficientRole = NewError(ErrAuthorization, "insufficient permissions")

	ErrUserExists     = NewError(ErrValidation, "username/email already exists")
	ErrUsernameTaken  = NewError(ErrUserExists, "username already exists")
	ErrEmailTaken     = NewError(ErrUserExists, "email already exists")
	ErrUserIDTaken    = NewError(ErrValidation, "user id already exists")
	ErrInvalidRole    = NewError(ErrValidation, "invalid role")
	ErrInvalidUserID  = NewError(ErrValidation, "invalid user id format")
	ErrMissingField   = NewError(ErrValidation, "username, email and password are required")
	ErrPasswordLength = NewError(ErrValidation, "password must be at most 72 bytes")

	ErrUserNotFound = NewError(ErrNotFound, "user not found")
)

type categorized struct {
	parent error
	msg    string
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.parent }

// NewError returns an error with message msg that matches parent under errors.Is.
func NewError(parent error, msg string) error {
	return &categorized{parent: parent, msg: msg}
}
