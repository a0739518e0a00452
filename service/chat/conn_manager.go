package chat

import (
	"sync"

	"chatgate/tools/ids"
)

// ManagerConf tunes the registry; zero values are normalized.
type ManagerConf struct {
	SendQueueSize int
}

func (c *ManagerConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
}

// ConnManager is the live connection registry. It is the only structure
// in the gateway touched by more than one goroutine: every connection's
// read loop and the liveness sweeper mutate it. A single mutex covers
// the map and every Client's rooms/alive fields; everything else a
// Client owns (its socket, its Send queue) has exactly one owner.
type ConnManager struct {
	mu    sync.Mutex
	conns map[string]*Client
	conf  ManagerConf
}

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	return &ConnManager{
		conns: make(map[string]*Client),
		conf:  conf,
	}
}

// Register creates a session for an authenticated connection: empty
// room set, alive, fresh connection ID. The session exists in the
// registry from this moment until Unregister.
func (m *ConnManager) Register(ws wsLink, userID string) *Client {
	c := NewClient(ids.GenerateString(), userID, ws, m.conf.SendQueueSize)
	m.mu.Lock()
	m.conns[c.ConnID] = c
	m.mu.Unlock()
	return c
}

// Unregister removes the session and tears the connection down.
// Idempotent: unknown or already-removed IDs are no-ops. Removal is
// synchronous; any fan-out snapshot taken after return excludes the
// session.
func (m *ConnManager) Unregister(connID string) {
	m.mu.Lock()
	c := m.conns[connID]
	delete(m.conns, connID)
	m.mu.Unlock()
	if c != nil {
		c.shutdown()
	}
}

func (m *ConnManager) Get(connID string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[connID]
}

func (m *ConnManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// JoinRoom subscribes the connection to slug. Reports whether the
// connection had already joined, and whether the session still exists.
func (m *ConnManager) JoinRoom(connID, slug string) (already, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conns[connID]
	if c == nil {
		return false, false
	}
	if _, dup := c.rooms[slug]; dup {
		return true, true
	}
	c.rooms[slug] = struct{}{}
	return false, true
}

func (m *ConnManager) InRoom(connID, slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conns[connID]
	if c == nil {
		return false
	}
	_, ok := c.rooms[slug]
	return ok
}

// SubscribersOf snapshots the sessions currently subscribed to slug.
// Membership is per-connection: a durable room member who has not sent
// join-room on this connection is not in the snapshot.
func (m *ConnManager) SubscribersOf(slug string) []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Client
	for _, c := range m.conns {
		if _, ok := c.rooms[slug]; ok {
			out = append(out, c)
		}
	}
	return out
}

// MarkAlive records a probe answer; called from pong handlers.
func (m *ConnManager) MarkAlive(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.conns[connID]; c != nil {
		c.alive = true
	}
}

// Sweep partitions sessions for one liveness tick: sessions that never
// answered the previous probe go to evict; the rest have their flag
// reset and go to ping. The caller probes and terminates outside the
// lock.
func (m *ConnManager) Sweep() (evict, ping []*Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if !c.alive {
			evict = append(evict, c)
			continue
		}
		c.alive = false
		ping = append(ping, c)
	}
	return evict, ping
}

// Close tears down every session; used on process shutdown.
func (m *ConnManager) Close() {
	m.mu.Lock()
	conns := make([]*Client, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]*Client)
	m.mu.Unlock()
	for _, c := range conns {
		c.shutdown()
	}
}
