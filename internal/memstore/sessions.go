package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-story/internal/models"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.PlaySession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]models.PlaySession)}
}

func copySession(s models.PlaySession) models.PlaySession {
	s.PresentedAnswers = append([]uint(nil), s.PresentedAnswers...)
	if s.Ending != nil {
		e := *s.Ending
		s.Ending = &e
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	return s
}

func (m *SessionStore) Create(_ context.Context, s *models.PlaySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("%w: session %s exists", models.ErrConflict, s.ID)
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.sessions[s.ID] = copySession(*s)
	return nil
}

func (m *SessionStore) Get(_ context.Context, id string) (*models.PlaySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s = copySession(s)
	return &s, nil
}

// Update stores s if its Version matches the stored one and bumps it.
func (m *SessionStore) Update(_ context.Context, s *models.PlaySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, s.ID)
	}
	if cur.Version != s.Version {
		return fmt.Errorf("%w: session %s version %d, stored %d", models.ErrConflict, s.ID, s.Version, cur.Version)
	}
	s.Version++
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = copySession(*s)
	return nil
}

func (m *SessionStore) ListByPlayer(_ context.Context, playerID uint) ([]models.PlaySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PlaySession
	for _, s := range m.sessions {
		if s.PlayerID == playerID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
