package wire

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latticedb/pgwire/engine"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/translate"
)

// TxStatus tracks where a session sits relative to an explicit transaction
// block, driving the status byte reported in ReadyForQuery (§4.10).
type TxStatus byte

const (
	TxIdle TxStatus = iota
	TxInBlock
	TxFailed
)

// Session is the adapter's per-connection state (the "Session" entry of the
// data model): its prepared statement and portal caches, transaction status,
// and the engine Conn it has acquired through the Connection Manager. One
// Session exists per client connection for its lifetime.
type Session struct {
	ID         uint64
	Database   string
	User       string
	Timezone   string
	OffsetSecs int32
	ProcessID  int32
	SecretKey  int32

	Tx     TxStatus
	Params map[string]string

	Statements StatementCache
	Portals    PortalCache

	manager *ConnManager
	conn    *engine.Conn

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// extendedErr buffers an error raised by a Parse/Bind/Describe/Execute
	// message until the client issues Sync, per the Extended Query
	// protocol's error-recovery contract (§4.10/§7): the backend reports
	// the failure but keeps discarding extended-query messages, without
	// resynchronizing, until Sync arrives.
	extendedErr error
}

var sessionCounter uint64

func nextSessionID() uint64 {
	return atomic.AddUint64(&sessionCounter, 1)
}

// NewSession constructs a Session bound to manager, with its own statement
// and portal caches. portalCap and staleAfter configure the portal cache's
// LRU and staleness-sweep behavior (§6.2/§8).
func NewSession(manager *ConnManager, database, user, defaultTimezone string, portalCap int, staleAfter time.Duration) *Session {
	id := nextSessionID()
	return &Session{
		ID:         id,
		Database:   database,
		User:       user,
		Timezone:   defaultTimezone,
		OffsetSecs: int32(translate.TZOffsetSeconds(defaultTimezone)),
		ProcessID:  int32(id),
		SecretKey:  int32(id*2654435761 + 1),
		Tx:         TxIdle,
		Params:     make(map[string]string),
		Statements: NewStatementCache(),
		Portals:    NewPortalCache(portalCap, staleAfter),
		manager:    manager,
	}
}

// Conn returns this session's exclusive engine connection, acquiring one
// from the Connection Manager on first use.
func (s *Session) Conn(ctx context.Context) (*engine.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	c, err := s.manager.Acquire(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	s.conn = c
	return c, nil
}

// Poison discards the session's engine connection (after a driver-level
// error the Connection Manager cannot trust further) and marks the
// session's transaction state Failed, whether or not a transaction is open,
// per the Connection Manager's replacement contract (§6.5).
func (s *Session) Poison() {
	if s.manager != nil {
		s.manager.Poison(s.ID)
	}
	s.conn = nil
	s.Tx = TxFailed
}

// Close releases the session's caches and engine connection. Called once
// when the client connection terminates.
func (s *Session) Close() {
	s.Portals.CloseAll(context.Background())
	if s.manager != nil {
		s.manager.Release(s.ID)
	}
	s.conn = nil
}

// Begin moves the session into an explicit transaction block.
func (s *Session) Begin() {
	if s.Tx == TxIdle {
		s.Tx = TxInBlock
	}
}

// Commit or Rollback end an explicit transaction block and return to idle.
// Unnamed portals are destroyed at end-of-transaction per §6.2.
func (s *Session) Commit() {
	s.Tx = TxIdle
	s.Portals.EndTransaction(context.Background())
}

func (s *Session) Rollback() {
	s.Tx = TxIdle
	s.Portals.EndTransaction(context.Background())
}

// Fail marks the session's transaction as failed. Outside of an explicit
// block an error does not poison subsequent statements (§7), so Fail is a
// no-op unless the session is already inside one.
func (s *Session) Fail() {
	if s.Tx == TxInBlock {
		s.Tx = TxFailed
	}
}

// SetParameter records a session-scoped configuration parameter (SET ...).
// The "timezone" parameter additionally updates the fixed-offset conversion
// used by the datetime translation rewrites (no native timezone database,
// per spec Non-goals).
func (s *Session) SetParameter(name, value string) {
	s.Params[name] = value
	if name == "timezone" {
		s.Timezone = value
		s.OffsetSecs = int32(translate.TZOffsetSeconds(value))
	}
}

// Status returns the ReadyForQuery transaction status byte for this
// session's current Tx state.
func (s *Session) Status() types.ServerStatus {
	switch s.Tx {
	case TxInBlock:
		return types.ServerTransactionBlock
	case TxFailed:
		return types.ServerTransactionFailed
	default:
		return types.ServerIdle
	}
}

// SetCancel records the context.CancelFunc for the statement currently
// executing on this session, so a CancelRequest arriving on another
// connection (matched by ProcessID/SecretKey, §6.6) can interrupt it. Pass
// nil once the statement finishes to avoid cancelling an unrelated later
// statement that happens to reuse the session.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

// Cancel interrupts the statement currently executing on this session, if
// any. A no-op if nothing is running.
func (s *Session) Cancel() {
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// BufferExtendedError records an error raised while processing a
// Parse/Bind/Describe/Execute message, to be flushed as an ErrorResponse
// once the client issues Sync. Only the first error of a series is kept.
// Always returns nil so handlers can `return session.BufferExtendedError(err)`.
func (s *Session) BufferExtendedError(err error) error {
	if s.extendedErr == nil {
		s.extendedErr = err
	}
	return nil
}

// ExtendedError returns the error buffered by BufferExtendedError, or nil
// if no extended-query error is pending.
func (s *Session) ExtendedError() error {
	return s.extendedErr
}

// ClearExtendedError discards any buffered extended-query error. Called
// once Sync has flushed it back to the client.
func (s *Session) ClearExtendedError() {
	s.extendedErr = nil
}

type sessionCtxKey struct{}

func setSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext returns the Session attached to ctx by the server's
// connection-serving loop, or nil if none has been set (e.g. outside of a
// live connection).
func SessionFromContext(ctx context.Context) *Session {
	v := ctx.Value(sessionCtxKey{})
	if v == nil {
		return nil
	}
	return v.(*Session)
}
