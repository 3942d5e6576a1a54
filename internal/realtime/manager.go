// Package realtime is the fan-out half of Recovery & Fan-out (C6): a
// WebSocket connection registry keyed by matter_id and user_id, plus a
// Redis pub/sub bridge so a document's processing progress — published
// by whichever worker process happens to run its tasks — reaches every
// API process holding a live connection for that matter. Connection
// bookkeeping follows connection_manager.py's per-matter/per-user index;
// the upgrade and keepalive plumbing follows gorilla/websocket's own
// ping/pong idiom.
package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"legal-doc-intelligence/internal/logger"
)

// Connection is one live WebSocket, registered under both its matter
// and its user so a message can be routed either way.
type Connection struct {
	ID          string
	UserID      string
	MatterID    string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time
}

// Manager tracks every live connection and routes outbound messages to
// the right subset without the caller needing to know who's connected.
type Manager struct {
	mu       sync.RWMutex
	byMatter map[string]map[string]*Connection
	byUser   map[string]map[string]*Connection
	all      map[string]*Connection
}

func NewManager() *Manager {
	return &Manager{
		byMatter: make(map[string]map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
		all:      make(map[string]*Connection),
	}
}

// Register indexes an already-upgraded connection; the caller (the
// HTTP handler in this package) owns accepting the upgrade itself.
func (m *Manager) Register(id, userID, matterID string, conn *websocket.Conn) *Connection {
	c := &Connection{
		ID:          id,
		UserID:      userID,
		MatterID:    matterID,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	if m.byMatter[matterID] == nil {
		m.byMatter[matterID] = make(map[string]*Connection)
	}
	m.byMatter[matterID][id] = c
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Connection)
	}
	m.byUser[userID][id] = c
	m.all[id] = c
	total := len(m.all)
	matterCount := len(m.byMatter[matterID])
	m.mu.Unlock()

	logger.Info("websocket connected", "user_id", userID, "matter_id", matterID, "total_connections", total, "matter_connections", matterCount)
	return c
}

// Unregister removes a connection and closes its send channel.
func (m *Manager) Unregister(c *Connection) {
	m.mu.Lock()
	if conns, ok := m.byMatter[c.MatterID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(m.byMatter, c.MatterID)
		}
	}
	if conns, ok := m.byUser[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
	delete(m.all, c.ID)
	total := len(m.all)
	m.mu.Unlock()

	close(c.Send)
	logger.Info("websocket disconnected", "user_id", c.UserID, "matter_id", c.MatterID, "total_connections", total)
}

// BroadcastToMatter queues message for delivery to every connection on
// matterID, dropping (rather than blocking) on a connection whose send
// buffer is already full — a slow client must not stall fan-out for
// everyone else.
func (m *Manager) BroadcastToMatter(matterID string, message []byte) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byMatter[matterID]))
	for _, c := range m.byMatter[matterID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		select {
		case c.Send <- message:
			sent++
		default:
			logger.Warn("websocket send buffer full, dropping message", "user_id", c.UserID, "matter_id", matterID)
		}
	}
	return sent
}

// SendToUser queues message for every connection a user holds, across
// every matter — used for account-level notifications.
func (m *Manager) SendToUser(userID string, message []byte) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		select {
		case c.Send <- message:
			sent++
		default:
		}
	}
	return sent
}

func (m *Manager) MatterConnectionCount(matterID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byMatter[matterID])
}

func (m *Manager) TotalConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.all)
}
