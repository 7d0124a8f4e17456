package notify

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/liftmatch/internal/models"
)

var ErrNoSession = errors.New("no websocket session")

// WSSession is one connected client. Writes are serialized because
// gorilla connections allow a single concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSRegistry tracks live sessions per user for immediate in-app
// notification delivery. At most one session per user; a reconnect
// replaces the previous one.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[userID] = &WSSession{conn: conn}
}

// Remove drops the session for userID, but only while it still owns
// conn. A reconnect replaces the session, and the stale connection's
// reader must not evict its successor.
func (r *WSRegistry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Send(userID string, n models.Notification) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(n)
}
