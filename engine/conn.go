package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latticedb/pgwire/value"
)

// Conn is one session's exclusive engine connection. It owns the engine's
// statement-preparation cache implicitly through database/sql's driver
// connection, and is released back to the pool when the owning session
// ends.
type Conn struct {
	raw *sql.Conn
}

// Close releases the connection. Safe to call once; the Connection
// Manager calls this on session end or when replacing a poisoned
// connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// Prepare compiles sql on this connection. The returned Stmt is owned by
// the caller (typically a Prepared Statement) until Finalize.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	stmt, err := c.raw.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: prepare: %w", err)
	}

	return &Stmt{raw: stmt, query: query}, nil
}

// Exec runs a statement directly without retaining a prepared handle, used
// for one-shot DDL/utility statements in the Simple query path.
func (c *Conn) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.raw.ExecContext(ctx, query, args...)
}

// RegisterFunction exposes the driver-level UDF registration to callers
// that need session-scoped functions; most registrations happen once at
// Engine.Open time via registerFunctions instead.
func (c *Conn) RegisterFunction(ctx context.Context, name string, arity int, fn interface{}) error {
	return c.raw.Raw(func(driverConn interface{}) error {
		sqliteConn, ok := driverConn.(interface {
			RegisterFunc(string, interface{}, bool) error
		})
		if !ok {
			return fmt.Errorf("engine: driver connection does not support function registration")
		}
		return sqliteConn.RegisterFunc(name, fn, true)
	})
}

// Stmt wraps a prepared statement plus a live cursor over its most recent
// execution, implementing the step/column_*/finalize part of the engine
// contract. database/sql does not expose prepare/bind/step as distinct
// calls the way the engine contract describes them; Bind buffers the
// arguments and Step lazily opens the *sql.Rows cursor on first call,
// which gives callers the same incremental semantics.
type Stmt struct {
	raw   *sql.Stmt
	query string

	args []interface{}
	rows *sql.Rows
	cols []string
	vals []interface{}
}

// Bind attaches a parameter value at the given 0-based index.
func (s *Stmt) Bind(index int, value interface{}) {
	for len(s.args) <= index {
		s.args = append(s.args, nil)
	}
	s.args[index] = value
}

// StepResult classifies the outcome of one Step call.
type StepResult int

const (
	StepRow StepResult = iota
	StepDone
	StepError
)

// Step advances the statement's cursor, executing it on first call.
func (s *Stmt) Step(ctx context.Context) (StepResult, error) {
	if s.rows == nil {
		rows, err := s.raw.QueryContext(ctx, s.args...)
		if err != nil {
			return StepError, err
		}

		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return StepError, err
		}

		s.rows = rows
		s.cols = cols
		s.vals = make([]interface{}, len(cols))
	}

	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return StepError, err
		}
		return StepDone, nil
	}

	ptrs := make([]interface{}, len(s.vals))
	for i := range s.vals {
		ptrs[i] = &s.vals[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return StepError, err
	}

	return StepRow, nil
}

// ColumnCount returns the number of result columns.
func (s *Stmt) ColumnCount() int {
	return len(s.cols)
}

// ColumnName returns the name of the column at the given 0-based index.
func (s *Stmt) ColumnName(i int) string {
	return s.cols[i]
}

// ColumnDeclaredType returns the declared (CREATE TABLE) type of the
// column at index i, empty when the engine cannot report one (e.g. an
// expression column).
func (s *Stmt) ColumnDeclaredType(i int) string {
	types, err := s.rows.ColumnTypes()
	if err != nil || i >= len(types) {
		return ""
	}
	return types[i].DatabaseTypeName()
}

// ColumnValue returns the value currently scanned for column i, as a Cell.
func (s *Stmt) ColumnValue(i int) value.Cell {
	return cellOf(s.vals[i])
}

// Finalize releases the statement and any open cursor.
func (s *Stmt) Finalize() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return s.raw.Close()
}

func cellOf(v interface{}) value.Cell {
	switch t := v.(type) {
	case nil:
		return value.Cell{Kind: value.CellNull}
	case int64:
		return value.Cell{Kind: value.CellInt, Int: t}
	case float64:
		return value.Cell{Kind: value.CellFloat, Flt: t}
	case string:
		return value.Cell{Kind: value.CellText, Str: t}
	case []byte:
		return value.Cell{Kind: value.CellBlob, Blob: t}
	default:
		return value.Cell{Kind: value.CellText, Str: fmt.Sprintf("%v", t)}
	}
}
