package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryUserStore implements UserStore using in-memory storage. It is the
// default store; a relational store can replace it behind the same
// interface without touching the directory service.
type MemoryUserStore struct {
	users map[string]*User
	mutex sync.RWMutex
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]*User),
	}
}

// GetUser retrieves a user by ID.
func (s *MemoryUserStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail retrieves a user by email.
func (s *MemoryUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

// CreateUser creates a new user. ID and email must both be unused.
func (s *MemoryUserStore) CreateUser(ctx context.Context, user *User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return ErrUserAlreadyExists
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrUserAlreadyExists
		}
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

// UpdateUser updates an existing user.
func (s *MemoryUserStore) UpdateUser(ctx context.Context, user *User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return ErrUserNotFound
	}
	user.UpdatedAt = time.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

// DeleteUser deletes a user.
func (s *MemoryUserStore) DeleteUser(ctx context.Context, userID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.users[userID]; !exists {
		return ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}

// ListUsers returns all users sorted by ID.
func (s *MemoryUserStore) ListUsers(ctx context.Context) ([]*User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		copied := *user
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
