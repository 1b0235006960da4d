package authevents

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chronicle/pkg/sentinel"
)

// InMemoryUserStore holds users in memory for tests/dev.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemoryUserStore constructs an empty user store.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

// Seed adds a user with a bcrypt-hashed password and returns its ID.
func (s *InMemoryUserStore) Seed(username, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user := User{ID: uuid.NewString(), Username: username, PasswordHash: hash}
	s.users[username] = user
	return user.ID, nil
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", username, sentinel.ErrNotFound)
	}
	return user, nil
}
