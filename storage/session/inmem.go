package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/academiahub/backend/core/registration"
)

type claim struct {
	sessionID string
	expiresAt time.Time
}

// inmemStore is a process-local registration.Store for tests and DEV runs
// without Redis.
type inmemStore struct {
	mu       sync.Mutex
	sessions map[string]registration.Session
	claims   map[string]claim
}

var _ registration.Store = (*inmemStore)(nil)

func NewInmemStore() *inmemStore {
	return &inmemStore{
		sessions: make(map[string]registration.Session),
		claims:   make(map[string]claim),
	}
}

func (st *inmemStore) SaveSession(_ context.Context, s registration.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
	return nil
}

func (st *inmemStore) GetSession(_ context.Context, id string) (registration.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return registration.Session{}, registration.ErrSessionNotFound
	}
	return s, nil
}

func (st *inmemStore) CompareAndSwapStatus(_ context.Context, id string, from, to registration.SessionStatus) (registration.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return registration.Session{}, registration.ErrSessionNotFound
	}
	if s.Status != from {
		return registration.Session{}, registration.ErrStatusChanged
	}
	s.Status = to
	st.sessions[id] = s
	return s, nil
}

func (st *inmemStore) ReserveClaim(_ context.Context, key, sessionID string, ttl time.Duration) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now()
	if c, ok := st.claims[key]; ok && c.expiresAt.After(now) && c.sessionID != sessionID {
		return false, nil
	}
	st.claims[key] = claim{sessionID: sessionID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (st *inmemStore) ReleaseClaim(_ context.Context, key, sessionID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if c, ok := st.claims[key]; ok && c.sessionID == sessionID {
		delete(st.claims, key)
	}
	return nil
}
