package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackward/platform"
)

// Service implements Directory over a UserStore and announces changes on
// the event bus.
type Service struct {
	store  UserStore
	bus    *platform.Bus
	logger platform.Logger
}

// NewService creates a directory service.
func NewService(store UserStore, bus *platform.Bus, logger platform.Logger) *Service {
	return &Service{store: store, bus: bus, logger: logger}
}

// CreateUser validates and stores a new user, then emits user.created.
func (s *Service) CreateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return fmt.Errorf("%w: ID and email are required", ErrInvalidUser)
	}
	if user.Role == "" {
		user.Role = platform.RoleViewer
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return err
	}
	s.bus.Emit(ctx, platform.NewPlatformEvent(EventTypeUserCreated, ModuleID,
		map[string]string{"user": user.ID, "role": user.Role}, nil))
	return nil
}

// User retrieves a user by ID.
func (s *Service) User(ctx context.Context, userID string) (*User, error) {
	return s.store.GetUser(ctx, userID)
}

// UserByEmail retrieves a user by email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.GetUserByEmail(ctx, email)
}

// UpdateUser updates an existing user and emits user.updated.
func (s *Service) UpdateUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("%w: ID is required", ErrInvalidUser)
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.bus.Emit(ctx, platform.NewPlatformEvent(EventTypeUserUpdated, ModuleID,
		map[string]string{"user": user.ID}, nil))
	return nil
}

// DeleteUser removes a user and emits user.deleted.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.bus.Emit(ctx, platform.NewPlatformEvent(EventTypeUserDeleted, ModuleID,
		map[string]string{"user": userID}, nil))
	return nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

// UserRole returns the role held by the user.
func (s *Service) UserRole(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// UserName returns the user's display name. Like UserExists it is
// consumed by other modules through the service registry.
func (s *Service) UserName(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

// UserExists reports whether the user is known. A missing user is not an
// error here; only store failures are.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
