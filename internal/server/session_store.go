package server

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo is a read-only view of a live session.
type SessionInfo struct {
	SessionID     string
	ClientName    string
	ClientVersion string
	CreatedAt     time.Time
	IdleFor       time.Duration
}

// SessionStore maps session ids to live sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session)}
}

// add stores s unless its id is taken.
func (s *SessionStore) add(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.id]; exists {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *SessionStore) get(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

// remove deletes and returns the session, reporting whether it existed.
func (s *SessionStore) remove(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return sess, ok
}

// idle returns the ids of sessions inactive for at least timeout.
func (s *SessionStore) idle(now time.Time, timeout time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.idleSince(now) >= timeout {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *SessionStore) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Info lists live sessions, oldest first.
func (s *SessionStore) Info(now time.Time) []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		ci := sess.GetClientInfo()
		out = append(out, SessionInfo{
			SessionID:     sess.id,
			ClientName:    ci.Name,
			ClientVersion: ci.Version,
			CreatedAt:     sess.createdAt,
			IdleFor:       sess.idleSince(now),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of active sessions
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
