package identity

import (
	"context"
	"errors"
)

var (
	// ErrUserNotFound is returned when no identity exists for the lookup.
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrDuplicateEmail is returned when creating an identity whose email is
	// already registered.
	ErrDuplicateEmail = errors.New("identity: email already registered")
	// ErrInvalidCredentials is returned by password verification; it does not
	// distinguish an unknown account from a wrong password.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

// AuthUser is an identity held by the managed auth platform.
type AuthUser struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	EmailConfirmed bool           `json:"emailConfirmed"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CreateUserParams are the attributes for provisioning a new identity.
type CreateUserParams struct {
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	EmailConfirmed bool           `json:"emailConfirmed"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// UpdateUserParams are partial updates; nil fields are left untouched.
type UpdateUserParams struct {
	Password *string        `json:"password,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Provider is the surface of the auth platform this backend provisions
// identities against and verifies credentials with.
type Provider interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*AuthUser, error)
	UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*AuthUser, error)
	DeleteUser(ctx context.Context, id string) error
	GetUserByEmail(ctx context.Context, email string) (*AuthUser, error)
	VerifyPassword(ctx context.Context, email, password string) (*AuthUser, error)
}
