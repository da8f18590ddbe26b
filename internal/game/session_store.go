package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionStore is the in-memory registry of live sessions. Lookup is by id;
// the store lock is never held while a session lock is held.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (s *SessionStore) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Get(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *SessionStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Snapshot returns the current session list for iteration outside the lock.
func (s *SessionStore) Snapshot() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SweepEvictable destroys sessions with no remaining real participants or
// that have been idle past idleAfter, stopping their timers through orch.
// Returns the ids removed.
func (s *SessionStore) SweepEvictable(orch *Orchestrator, idleAfter time.Duration, logger *logrus.Logger) []uuid.UUID {
	var evicted []uuid.UUID
	for _, sess := range s.Snapshot() {
		if !sess.Evictable(idleAfter) {
			continue
		}
		s.Delete(sess.ID)
		if orch != nil {
			orch.Drop(sess.ID)
		}
		evicted = append(evicted, sess.ID)
		if logger != nil {
			logger.WithField("session", sess.ID).Info("evicted idle session")
		}
	}
	return evicted
}

// RunSweeper loops SweepEvictable until the context is cancelled. Owned by
// the process, not by any session.
func (s *SessionStore) RunSweeper(ctx context.Context, orch *Orchestrator, interval, idleAfter time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepEvictable(orch, idleAfter, logger)
		}
	}
}
