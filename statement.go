package wire

import (
	"context"
	"sync"

	"github.com/latticedb/pgwire/translate"
	"github.com/lib/pq/oid"
)

// PreparedStatement is the Prepared Statement entry of the data model
// (§3): a named (or unnamed) translated statement, its inferred parameter
// OIDs, and — once known — its result column descriptors. Columns starts
// nil for a statement prepared through the Extended protocol and, for a
// SELECT, is filled in by its first Bind (bindPortal), then reused by later
// Describe/Bind calls against the same statement name.
type PreparedStatement struct {
	Name          string
	RawSQL        string
	Translation   translate.Translation
	ParameterOIDs []oid.Oid
	Columns       Columns

	TxAction translate.TxAction
	SetParam *translate.SetParam
}

// StatementCache owns a session's named and unnamed prepared statements.
// The unnamed statement is a single slot that Parse silently replaces; a
// named statement surviving a second Parse without an intervening Close is
// also replaced (the caller logs a notice; see handleParse), rather than
// erroring the way a generic reusable cache might.
type StatementCache interface {
	Set(ctx context.Context, name string, stmt *PreparedStatement) error
	Get(ctx context.Context, name string) (*PreparedStatement, bool)
	Close(ctx context.Context, name string) error
}

// NewStatementCache constructs the default map-backed StatementCache.
func NewStatementCache() StatementCache {
	return &statementCache{statements: make(map[string]*PreparedStatement)}
}

type statementCache struct {
	mu         sync.RWMutex
	statements map[string]*PreparedStatement
}

func (c *statementCache) Set(ctx context.Context, name string, stmt *PreparedStatement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements[name] = stmt
	return nil
}

func (c *statementCache) Get(ctx context.Context, name string) (*PreparedStatement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stmt, ok := c.statements[name]
	return stmt, ok
}

func (c *statementCache) Close(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statements, name)
	return nil
}
