package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quiz-story/internal/models"
)

type UserStore struct {
	mu     sync.RWMutex
	users  map[string]models.User
	nextID uint
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]models.User)}
}

func (m *UserStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("user %w", models.ErrNotFound)
	}
	return &u, nil
}

func (m *UserStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return fmt.Errorf("%w: username taken", models.ErrConflict)
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.Username] = *user
	return nil
}
