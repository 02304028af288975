package wire

import (
	"context"
	"sync"
	"time"

	"github.com/latticedb/pgwire/engine"
	"github.com/latticedb/pgwire/metrics"
	"github.com/latticedb/pgwire/value"
)

// PortalState tracks where a Portal sits in its Bind/Execute/Execute.../
// Close lifecycle (§3's "Portal" data model entry, §4.8's suspend/resume
// behavior).
type PortalState int

const (
	PortalNotStarted PortalState = iota
	PortalSuspendedState
	PortalDone
)

// Portal is the Portal entry of the data model: a bound statement plus the
// live engine cursor driving its Execute/PortalSuspended/resume cycle. A
// Portal owns its *engine.Stmt directly (rather than a closure, as the
// teacher's cache.go does for its callback-based statements) because
// resuming a suspended portal across multiple Execute calls requires
// keeping that cursor open in between them.
type Portal struct {
	Name          string
	Statement     *PreparedStatement
	BoundParams   []value.Cell
	ResultFormats []FormatCode

	State         PortalState
	RowsDelivered int

	stmt       *engine.Stmt
	headerSent bool
	lastUsed   time.Time

	// primedRow/primedHasRow/primedDone capture the outcome of the single
	// Step bindPortal performs immediately after Bind for a SELECT
	// statement, so its result columns are known before the first
	// Describe or Execute. The first Execute against this portal consumes
	// this state instead of calling Step again; primedHasRow and
	// primedDone are never both true.
	primedRow    []value.Cell
	primedHasRow bool
	primedDone   bool
}

// takePrimed returns and clears this portal's primed first-row state, if
// any, for the first Execute call to consume.
func (p *Portal) takePrimed() (row []value.Cell, hasRow bool, done bool) {
	row, hasRow, done = p.primedRow, p.primedHasRow, p.primedDone
	p.primedRow, p.primedHasRow, p.primedDone = nil, false, false
	return row, hasRow, done
}

// Finalize releases the portal's live cursor, if any. Safe to call more
// than once.
func (p *Portal) Finalize() {
	if p.stmt != nil {
		p.stmt.Finalize()
		p.stmt = nil
	}
}

// PortalCache owns a session's named and unnamed portals, evicting the
// least-recently-used named portal once the configured capacity is
// exceeded and sweeping portals untouched past a staleness threshold —
// the fresh/stale distinction mevdschee-tqdbproxy's cache package models
// for its LRU-backed cache.
type PortalCache interface {
	Bind(ctx context.Context, portal *Portal) error
	Get(ctx context.Context, name string) (*Portal, bool)
	Close(ctx context.Context, name string) error
	CloseAll(ctx context.Context) error
	EndTransaction(ctx context.Context) error
}

// NewPortalCache constructs the default map-backed PortalCache. capacity <=
// 0 disables the LRU cap (unlimited named portals); staleAfter <= 0
// disables the staleness sweep.
func NewPortalCache(capacity int, staleAfter time.Duration) PortalCache {
	return &portalCache{
		portals:    make(map[string]*Portal),
		capacity:   capacity,
		staleAfter: staleAfter,
	}
}

type portalCache struct {
	mu         sync.Mutex
	portals    map[string]*Portal
	capacity   int
	staleAfter time.Duration
}

func (c *portalCache) Bind(ctx context.Context, portal *Portal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.portals[portal.Name]; ok {
		existing.Finalize()
	}

	portal.lastUsed = time.Now()
	c.portals[portal.Name] = portal

	c.sweepStaleLocked()
	c.evictLRULocked()
	return nil
}

func (c *portalCache) Get(ctx context.Context, name string) (*Portal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.portals[name]
	if ok {
		p.lastUsed = time.Now()
	}
	return p, ok
}

func (c *portalCache) Close(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.portals[name]; ok {
		p.Finalize()
		delete(c.portals, name)
	}
	return nil
}

func (c *portalCache) CloseAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, p := range c.portals {
		p.Finalize()
		delete(c.portals, name)
	}
	return nil
}

// EndTransaction drops the unnamed portal, per §6.2's rule that unnamed
// portals do not survive end-of-transaction. Named portals are unaffected.
func (c *portalCache) EndTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.portals[""]; ok {
		p.Finalize()
		delete(c.portals, "")
	}
	return nil
}

// sweepStaleLocked evicts every named portal untouched for longer than
// staleAfter. Called with c.mu held.
func (c *portalCache) sweepStaleLocked() {
	if c.staleAfter <= 0 {
		return
	}

	cutoff := time.Now().Add(-c.staleAfter)
	for name, p := range c.portals {
		if name == "" {
			continue
		}
		if p.lastUsed.Before(cutoff) {
			p.Finalize()
			delete(c.portals, name)
			metrics.PortalCacheEvictions.WithLabelValues("stale").Inc()
		}
	}
}

// evictLRULocked evicts the least-recently-used named portal(s) until the
// named-portal count is within capacity. Called with c.mu held.
func (c *portalCache) evictLRULocked() {
	if c.capacity <= 0 {
		return
	}

	for {
		named := make([]*Portal, 0, len(c.portals))
		for name, p := range c.portals {
			if name != "" {
				named = append(named, p)
			}
		}
		if len(named) <= c.capacity {
			return
		}

		oldest := named[0]
		for _, p := range named[1:] {
			if p.lastUsed.Before(oldest.lastUsed) {
				oldest = p
			}
		}

		oldest.Finalize()
		delete(c.portals, oldest.Name)
		metrics.PortalCacheEvictions.WithLabelValues("lru").Inc()
	}
}
