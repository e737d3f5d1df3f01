package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated login: a bearer token bound to a user.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// SessionStore is a thread-safe in-memory store for sessions.
// Primary index: token → session.
// Secondary index: user_id → token → session.
type SessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*Session
	byUser   map[int64]map[string]*Session
}

// NewSessionStore creates an empty SessionStore whose sessions live for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
		byUser:   make(map[int64]map[string]*Session),
	}
}

// Create opens a new session for userID.
func (s *SessionStore) Create(userID int64) *Session {
	sess := &Session{
		Token:     uuid.New().String(),
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Token] = sess
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]*Session)
	}
	s.byUser[userID][sess.Token] = sess

	return sess
}

// Get returns the live session for token. Expired sessions are removed
// and reported as missing.
func (s *SessionStore) Get(token string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		s.Delete(token)
		return nil, false
	}
	return sess, true
}

// Delete removes a session. Deleting an unknown token is a no-op.
func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(token)
}

// DeleteUser removes every session of userID and returns how many there were.
func (s *SessionStore) DeleteUser(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.byUser[userID]
	for token := range tokens {
		delete(s.sessions, token)
	}
	delete(s.byUser, userID)
	return len(tokens)
}

// Sweep removes all sessions that expired at or before now.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			s.deleteLocked(token)
			removed++
		}
	}
	return removed
}

// Start sweeps expired sessions every interval until ctx is cancelled.
func (s *SessionStore) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.Sweep(t)
			}
		}
	}()
}

func (s *SessionStore) deleteLocked(token string) {
	sess, ok := s.sessions[token]
	if !ok {
		return
	}
	delete(s.sessions, token)
	if tokens := s.byUser[sess.UserID]; tokens != nil {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}
