// Package identity provides the user and role directory for the platform.
// Other modules resolve the Directory service handle through the service
// registry to answer "who is this user and what role do they hold" without
// importing this package.
package identity

import (
	"context"
	"errors"
	"time"
)

// ModuleID is the identifier the module registers under.
const ModuleID = "identity"

// Module errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidUser       = errors.New("invalid user")
)

// Event types emitted by this module.
const (
	EventTypeUserCreated = "com.stackward.platform.identity.user.created"
	EventTypeUserUpdated = "com.stackward.platform.identity.user.updated"
	EventTypeUserDeleted = "com.stackward.platform.identity.user.deleted"
)

// User is one principal known to the platform.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserStore abstracts user persistence for the directory service.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// Directory is the exported service surface registered as this module's
// service handle.
type Directory interface {
	CreateUser(ctx context.Context, user *User) error
	User(ctx context.Context, userID string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*User, error)

	// UserRole returns the role held by the user.
	UserRole(ctx context.Context, userID string) (string, error)

	// UserName returns the user's display name.
	UserName(ctx context.Context, userID string) (string, error)

	// UserExists is the lightweight existence check other modules use
	// through the service registry.
	UserExists(ctx context.Context, userID string) (bool, error)
}
