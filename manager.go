package wire

import (
	"context"
	"sync"

	"github.com/latticedb/pgwire/engine"
	"github.com/latticedb/pgwire/metrics"
)

// ConnManager is the Connection Manager (component L6): a reader-writer
// locked map from session ID to its exclusive engine Connection. A session
// acquires its Conn lazily on first statement execution and keeps it for
// its lifetime; Poison drops a connection a driver-level error has made
// untrustworthy so the next Acquire call draws a fresh one (§6.5).
type ConnManager struct {
	engine *engine.Engine

	mu    sync.RWMutex
	conns map[uint64]*engine.Conn
}

// NewConnManager constructs a Connection Manager backed by the given
// engine.
func NewConnManager(e *engine.Engine) *ConnManager {
	return &ConnManager{engine: e, conns: make(map[uint64]*engine.Conn)}
}

// Acquire returns the engine Conn already held by sessionID, acquiring a
// new one from the engine on first call.
func (m *ConnManager) Acquire(ctx context.Context, sessionID uint64) (*engine.Conn, error) {
	m.mu.RLock()
	c, ok := m.conns[sessionID]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := m.engine.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.conns[sessionID] = c
	m.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	return c, nil
}

// Poison closes and discards sessionID's connection, if any. The next
// Acquire call for that session draws a fresh one.
func (m *ConnManager) Poison(sessionID uint64) {
	m.mu.Lock()
	c, ok := m.conns[sessionID]
	delete(m.conns, sessionID)
	m.mu.Unlock()

	if ok {
		c.Close()
		metrics.ConnectionsActive.Dec()
	}
}

// ForeachActive calls fn once for every session currently holding a live
// engine connection, under the manager's read lock. Used by admin/metrics
// tooling that needs to enumerate active connections (§4.6) without
// racing Acquire/Release; fn must not call back into the manager.
func (m *ConnManager) ForeachActive(fn func(sessionID uint64, conn *engine.Conn)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, c := range m.conns {
		fn(id, c)
	}
}

// Release closes and forgets sessionID's connection at session end.
func (m *ConnManager) Release(sessionID uint64) {
	m.mu.Lock()
	c, ok := m.conns[sessionID]
	delete(m.conns, sessionID)
	m.mu.Unlock()

	if ok {
		c.Close()
		metrics.ConnectionsActive.Dec()
	}
}
