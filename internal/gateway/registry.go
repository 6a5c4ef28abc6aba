package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/louieee/chatclone/pkg/transport"
)

type session struct {
	conn        *transport.Connection
	ip          string
	principalID int64
	createdAt   time.Time
}

// sessionRegistry tracks every live gateway connection for per-IP limiting
// and graceful shutdown.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[uuid.UUID]*session)}
}

func (r *sessionRegistry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.conn.ID()] = s
}

func (r *sessionRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) countByIP(ip string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.ip == ip {
			n++
		}
	}
	return n
}

// oldestByIP returns the longest-lived connection from the given address.
func (r *sessionRegistry) oldestByIP(ip string) (*transport.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *session
	for _, s := range r.sessions {
		if s.ip != ip {
			continue
		}
		if oldest == nil || s.createdAt.Before(oldest.createdAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest.conn, true
}

func (r *sessionRegistry) all() []*transport.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*transport.Connection, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	return conns
}
