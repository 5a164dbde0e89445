package ftp

import (
	"sync"
	"time"
)

// SessionSummary is a read-only snapshot of a live session, served by
// Server.ListSessions and the pre-login STAT command.
type SessionSummary struct {
	ID          string
	ClientIP    string
	User        string
	State       string
	ConnectedAt time.Time
	IdleFor     time.Duration
}

// sessionRegistry tracks live sessions for status reporting, the idle
// janitor, and forced shutdown.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// forEach calls fn for every live session. fn must not block; it runs with
// the registry read lock held.
func (r *sessionRegistry) forEach(fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		fn(s)
	}
}

func (r *sessionRegistry) summaries() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionSummary{
			ID:          s.id,
			ClientIP:    s.remoteIP,
			User:        s.User(),
			State:       s.State().String(),
			ConnectedAt: s.connectedAt,
			IdleFor:     s.IdleFor(),
		})
	}
	return out
}
