package nse

import (
	"sync"
	"time"
)

// sessionStore is a dumb holder for the current anti-bot cookie set and the
// time it was captured. Cookie contents are never validated here. The cookie
// map and acquisition timestamp always change together under one lock, so a
// reader can never observe cookies from one handshake paired with the
// timestamp of another.
type sessionStore struct {
	mu         sync.RWMutex
	cookies    map[string]string
	acquiredAt time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{}
}

// Cookies returns a copy of the stored cookie set and its acquisition time.
// A zero time means no handshake has ever succeeded.
func (s *sessionStore) Cookies() (map[string]string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out, s.acquiredAt
}

// SetCookies replaces the stored cookie set and stamps the current time.
func (s *sessionStore) SetCookies(cookies map[string]string) {
	copied := make(map[string]string, len(cookies))
	for k, v := range cookies {
		copied[k] = v
	}

	s.mu.Lock()
	s.cookies = copied
	s.acquiredAt = time.Now()
	s.mu.Unlock()
}

// Empty reports whether no cookies have been captured yet.
func (s *sessionStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cookies) == 0
}

// Age returns how long ago the cookies were captured.
func (s *sessionStore) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.acquiredAt.IsZero() {
		return 0
	}
	return time.Since(s.acquiredAt)
}
