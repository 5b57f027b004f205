package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"license-exam-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions own a running countdown so they stay in this process; Redis holds a
// liveness marker per attempt (exam:session:{attemptID} -> candidate id) that
// other instances and operators can inspect.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.CandidateID(), s.ttl).Err()
}

func (s *SessionStore) Get(attemptID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[attemptID]
	return session, ok
}

func (s *SessionStore) Delete(attemptID string) {
	s.mu.Lock()
	_, ok := s.sessions[attemptID]
	delete(s.sessions, attemptID)
	s.mu.Unlock()
	if ok {
		_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
	}
}

// Touch extends the liveness marker of an attempt that is still in use.
func (s *SessionStore) Touch(ctx context.Context, attemptID string) error {
	return s.client.Expire(ctx, s.key(attemptID), s.ttl).Err()
}

func (s *SessionStore) key(attemptID string) string {
	return "exam:session:" + attemptID
}
