package services

import (
	"sync"

	"github.com/google/uuid"
)

// SessionLocks serializes engine work per session: progress recalculation
// and unlock evaluation for one session must not interleave, while
// distinct sessions run in parallel. Locks are reference-counted so idle
// sessions don't accumulate entries.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocks creates an empty lock table.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

// WithLock runs fn while holding the session's lock. Not reentrant.
func (s *SessionLocks) WithLock(sessionID uuid.UUID, fn func() error) error {
	l := s.acquire(sessionID)
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		s.release(sessionID)
	}()
	return fn()
}

func (s *SessionLocks) acquire(sessionID uuid.UUID) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	return l
}

func (s *SessionLocks) release(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, sessionID)
	}
}
