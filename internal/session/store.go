package session

import (
	"log/slog"
	"sync"
	"time"
)

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Store owns every active Session, keyed by user ID.
//
// The map itself is guarded by mu. A turn for one user must run under
// Lock(userID) so messages from the same user never mutate a Session
// concurrently; different users never contend on each other's lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*userLock
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*userLock),
		now:      time.Now,
	}
}

// NewStoreWithClock creates a store that reads time from now. Used by tests.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Lock acquires the per-user turn lock and returns its release function.
func (s *Store) Lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// Get returns the active session for userID.
func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// CreateOrReset replaces any session for userID with a fresh one at step 0.
func (s *Store) CreateOrReset(userID string) *Session {
	sess := newSession(userID, s.now())

	s.mu.Lock()
	_, replaced := s.sessions[userID]
	s.sessions[userID] = sess
	s.mu.Unlock()

	if replaced {
		slog.Debug("Intake session reset", "user_id", userID)
	} else {
		slog.Debug("Intake session created", "user_id", userID)
	}
	return sess
}

// Remove deletes the session for userID. Removing a missing session is a no-op.
func (s *Store) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// TakeIfIdle removes and returns userID's session when it has been idle
// longer than ttl.
func (s *Store) TakeIfIdle(userID string, ttl time.Duration) (*Session, bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.IdleFor(now) <= ttl {
		return nil, false
	}
	delete(s.sessions, userID)
	return sess, true
}

// Touch records activity for userID's session, if any.
func (s *Store) Touch(userID string) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.UpdatedAt = now
	}
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expired returns the IDs of users whose session has been idle longer than ttl.
func (s *Store) Expired(ttl time.Duration) []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.IdleFor(now) > ttl {
			ids = append(ids, id)
		}
	}
	return ids
}
