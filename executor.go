package wire

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticedb/pgwire/codes"
	"github.com/latticedb/pgwire/engine"
	pgerror "github.com/latticedb/pgwire/errors"
	"github.com/latticedb/pgwire/metrics"
	"github.com/latticedb/pgwire/translate"
	"github.com/latticedb/pgwire/value"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
)

// translateStatement runs a raw SQL string through the Query Translator and
// classifies it as a transaction-boundary or SET statement (§6.2), which
// the executor intercepts before the engine ever sees it.
func (srv *Server) translateStatement(name, rawSQL string) (*PreparedStatement, error) {
	translation, err := srv.Translator.Translate(rawSQL)
	if err != nil {
		return nil, pgerror.WithSeverity(pgerror.WithCode(err, codes.Syntax), pgerror.LevelError)
	}

	stmt := &PreparedStatement{
		Name:        name,
		RawSQL:      rawSQL,
		Translation: translation,
		TxAction:    translate.ClassifyTransaction(rawSQL),
	}

	if setParam, ok := translate.ParseSet(rawSQL); ok {
		stmt.SetParam = setParam
	}

	return stmt, nil
}

// execUtility handles a statement the Session owns outright (BEGIN/COMMIT/
// ROLLBACK/SET), never reaching the engine. ok is false for any statement
// that must instead run against the engine.
func execUtility(session *Session, stmt *PreparedStatement) (tag string, ok bool) {
	switch stmt.TxAction {
	case translate.TxBegin:
		session.Begin()
		return "BEGIN", true
	case translate.TxCommit:
		session.Commit()
		return "COMMIT", true
	case translate.TxRollback:
		session.Rollback()
		return "ROLLBACK", true
	}

	if stmt.SetParam != nil {
		session.SetParameter(stmt.SetParam.Name, stmt.SetParam.Value)
		return "SET", true
	}

	return "", false
}

// commandTag formats the CommandComplete tag for a completed statement,
// following the same verb/row-count convention PostgreSQL itself uses.
func commandTag(translation translate.Translation, rawSQL string, rowsAffected int64) string {
	switch translation.Kind {
	case translate.KindSelect:
		return fmt.Sprintf("SELECT %d", rowsAffected)
	case translate.KindInsert:
		return fmt.Sprintf("INSERT 0 %d", rowsAffected)
	case translate.KindUpdate:
		return fmt.Sprintf("UPDATE %d", rowsAffected)
	case translate.KindDelete:
		return fmt.Sprintf("DELETE %d", rowsAffected)
	case translate.KindDDL:
		if verb := translate.DDLVerb(rawSQL); verb != "" {
			return verb
		}
		return "DDL"
	default:
		return "OK"
	}
}

// cellToNative unwraps a value.Cell into the plain Go value the
// database/sql driver accepts as a bind argument.
func cellToNative(c value.Cell) interface{} {
	switch c.Kind {
	case value.CellNull:
		return nil
	case value.CellInt:
		return c.Int
	case value.CellFloat:
		return c.Flt
	case value.CellText:
		return c.Str
	case value.CellBlob:
		return c.Blob
	default:
		return nil
	}
}

// nativeSample unwraps a value.Cell into a plain Go value for the Type
// Registry's sample-sniffing fallback (catalog.ResolveOID's third step).
func nativeSample(c value.Cell) interface{} {
	switch c.Kind {
	case value.CellNull:
		return nil
	case value.CellInt:
		return c.Int
	case value.CellFloat:
		return c.Flt
	case value.CellText:
		return c.Str
	case value.CellBlob:
		return c.Blob
	default:
		return nil
	}
}

// buildColumns resolves the RowDescription shape of a statement's result
// from the engine's reported column names/declared types, falling back to
// sample sniffing off the first row (via the Type Registry's three-step
// priority) when the engine reports no declared type for a column (e.g. a
// computed expression). sample is nil when the result set was empty.
func buildColumns(srv *Server, table string, estmt *engine.Stmt, sample []value.Cell) Columns {
	n := estmt.ColumnCount()
	cols := make(Columns, n)
	for i := 0; i < n; i++ {
		name := estmt.ColumnName(i)
		declared := estmt.ColumnDeclaredType(i)

		var native interface{}
		if sample != nil {
			native = nativeSample(sample[i])
		}

		cols[i] = Column{
			Name:   name,
			Oid:    srv.Catalog.ResolveOID(table, name, declared, native),
			Width:  -1,
			AttrNo: int16(i + 1),
		}
	}
	return cols
}

// stepOutcome carries a row (or the done signal) already fetched from a
// *engine.Stmt before streamRows is called, so a portal's primed first
// Step (performed by bindPortal) is delivered to the client instead of
// being silently dropped or re-fetched.
type stepOutcome struct {
	row    []value.Cell
	hasRow bool
	done   bool
}

// streamRows pulls rows from a bound *engine.Stmt and writes them through
// dw, honoring maxRows (0 means unlimited) for the portal suspend/resume
// contract (§4.8). If first is non-nil, its outcome is consumed as the
// first row/done signal instead of calling Step again — the Bind-time
// priming bindPortal performs for SELECT statements. It returns
// done=true once the result set is exhausted (the caller sends
// CommandComplete) or done=false once maxRows rows have been delivered
// with more remaining (the caller sends PortalSuspended instead).
func streamRows(ctx context.Context, srv *Server, estmt *engine.Stmt, table string, dw DataWriter, maxRows int, first *stepOutcome) (done bool, err error) {
	var columns Columns
	delivered := 0

	for maxRows <= 0 || delivered < maxRows {
		if err := ctx.Err(); err != nil {
			return false, pgerror.WithSeverity(pgerror.WithCode(err, codes.QueryCanceled), pgerror.LevelError)
		}

		var sample []value.Cell
		var stepDone bool
		havePrimed := false

		if first != nil {
			if first.hasRow || first.done {
				sample, stepDone = first.row, first.done
				havePrimed = true
			}
			first = nil
		}

		if !havePrimed {
			result, stepErr := estmt.Step(ctx)
			if stepErr != nil {
				return false, classifyEngineError(stepErr)
			}

			if result == engine.StepDone {
				stepDone = true
			} else {
				sample = make([]value.Cell, estmt.ColumnCount())
				for i := range sample {
					sample[i] = estmt.ColumnValue(i)
				}
			}
		}

		if stepDone {
			if columns == nil {
				columns = buildColumns(srv, table, estmt, nil)
				if err := dw.Define(columns); err != nil {
					return false, err
				}
			}
			return true, nil
		}

		if columns == nil {
			columns = buildColumns(srv, table, estmt, sample)
			if err := dw.Define(columns); err != nil {
				return false, err
			}
		}

		row := make([]any, len(columns))
		for i := range row {
			row[i] = sample[i]
		}
		if err := dw.Row(row); err != nil {
			return false, err
		}
		delivered++
	}

	return false, nil
}

// execWrite runs a non-SELECT statement (INSERT/UPDATE/DELETE/DDL/utility)
// directly against the session's engine connection, without retaining a
// prepared handle, and reports the rows it affected for the
// CommandComplete tag.
func execWrite(ctx context.Context, conn *engine.Conn, engineSQL string, args []interface{}) (rowsAffected int64, err error) {
	res, err := conn.Exec(ctx, engineSQL, args...)
	if err != nil {
		return 0, classifyEngineError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		// Not every statement (e.g. DDL) reports an affected row count;
		// that is not itself an error.
		return 0, nil
	}
	return n, nil
}

// classifyEngineError maps a go-sqlite3 driver error to the SQLSTATE it
// corresponds to, so constraint violations surface through the wire
// protocol as the same error classes PostgreSQL itself would report.
func classifyEngineError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return pgerror.WithCode(err, codes.UniqueViolation)
		case sqlite3.ErrConstraintForeignKey:
			return pgerror.WithCode(err, codes.ForeignKeyViolation)
		case sqlite3.ErrConstraintNotNull:
			return pgerror.WithCode(err, codes.NotNullViolation)
		case sqlite3.ErrConstraintCheck:
			return pgerror.WithCode(err, codes.CheckViolation)
		default:
			return pgerror.WithCode(err, codes.CheckViolation)
		}
	}

	return pgerror.WithCode(err, codes.Io)
}

// runSimpleStatement executes one statement of a (possibly multi-statement)
// Simple-query string end to end: translate, intercept transaction/SET
// statements, stream or execute against the engine, and write
// CommandComplete. The Simple query protocol never carries bind
// parameters, so statements run with zero arguments (§4.2).
func (srv *Server) runSimpleStatement(ctx context.Context, session *Session, rawSQL string, dw DataWriter) error {
	stmt, err := srv.translateStatement("", rawSQL)
	if err != nil {
		return err
	}

	if tag, ok := execUtility(session, stmt); ok {
		return dw.Complete(tag)
	}

	if session.Tx == TxFailed {
		return pgerror.WithSeverity(pgerror.WithCode(errors.New("current transaction is aborted, commands ignored until end of transaction block"), codes.InFailedSQLTransaction), pgerror.LevelError)
	}

	conn, err := session.Conn(ctx)
	if err != nil {
		return pgerror.WithCode(err, codes.Io)
	}

	kind := stmt.Translation.Kind.CommandTag()
	if kind == "" {
		kind = "other"
	}
	timer := prometheus.NewTimer(metrics.QueryLatency.WithLabelValues(kind))
	defer timer.ObserveDuration()

	engineSQL := translate.EngineSQL(stmt.Translation.SQL)

	if stmt.Translation.Kind == translate.KindSelect {
		estmt, err := conn.Prepare(ctx, engineSQL)
		if err != nil {
			metrics.QueryErrorsTotal.WithLabelValues(string(pgerror.GetCode(err))).Inc()
			session.Fail()
			return classifyEngineError(err)
		}
		defer estmt.Finalize()

		done, err := streamRows(ctx, srv, estmt, stmt.Translation.Table, dw, 0, nil)
		if err != nil {
			metrics.QueryErrorsTotal.WithLabelValues(string(pgerror.GetCode(err))).Inc()
			session.Fail()
			return err
		}
		if !done {
			return errors.New("wire: simple query unexpectedly suspended")
		}

		metrics.QueriesTotal.WithLabelValues("simple", kind).Inc()
		return dw.Complete(commandTag(stmt.Translation, rawSQL, int64(dw.Written())))
	}

	rowsAffected, err := execWrite(ctx, conn, engineSQL, nil)
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(string(pgerror.GetCode(err))).Inc()
		session.Fail()
		return err
	}

	metrics.QueriesTotal.WithLabelValues("simple", kind).Inc()
	return dw.Complete(commandTag(stmt.Translation, rawSQL, rowsAffected))
}

// bindPortal prepares a Portal's engine statement and binds its decoded
// parameters. For SELECT statements it also primes the cursor with a first
// Step so the Portal's result columns are known immediately after Bind —
// the engine contract only reports column metadata once a statement has
// actually been stepped (see engine.Stmt), so Describe(Portal) needs this
// eagerness to answer accurately before the first Execute. DML/DDL
// statements are never primed here: their side effects must not occur
// before the client actually sends Execute.
func bindPortal(ctx context.Context, srv *Server, conn *engine.Conn, portal *Portal) error {
	if portal.Statement.Translation.Kind != translate.KindSelect {
		// DML/DDL statements run once, at Execute time, directly against
		// the connection (see executePortal/execWrite) — Bind must not touch the
		// engine for them at all.
		return nil
	}

	engineSQL := translate.EngineSQL(portal.Statement.Translation.SQL)

	estmt, err := conn.Prepare(ctx, engineSQL)
	if err != nil {
		return classifyEngineError(err)
	}

	for i, cell := range portal.BoundParams {
		estmt.Bind(i, cellToNative(cell))
	}

	portal.stmt = estmt

	result, err := estmt.Step(ctx)
	if err != nil {
		estmt.Finalize()
		portal.stmt = nil
		return classifyEngineError(err)
	}

	var sample []value.Cell
	if result == engine.StepRow {
		sample = make([]value.Cell, estmt.ColumnCount())
		for i := range sample {
			sample[i] = estmt.ColumnValue(i)
		}
		portal.primedRow = sample
		portal.primedHasRow = true
	} else {
		portal.primedDone = true
	}

	if portal.Statement.Columns == nil {
		portal.Statement.Columns = buildColumns(srv, portal.Statement.Translation.Table, estmt, sample)
	}

	return nil
}

// executePortal drives Execute against an already-bound Portal, honoring
// maxRows for the suspend/resume contract (§4.8). SELECT portals stream
// from the live cursor bindPortal prepared, consuming its primed first
// row on the first call; the caller sends CommandComplete once done is
// true, or PortalSuspended otherwise. DML/DDL portals run once, directly
// against conn, the first time Execute is called — done is always true
// for them and tag is always set; a second Execute against the same
// portal without an intervening Bind is a client protocol error and
// returns done=true with an empty tag rather than re-running the
// statement.
func executePortal(ctx context.Context, srv *Server, conn *engine.Conn, portal *Portal, dw DataWriter, maxRows int) (done bool, tag string, err error) {
	if portal.Statement.Translation.Kind != translate.KindSelect {
		if portal.State == PortalDone {
			return true, "", nil
		}
		portal.State = PortalDone

		engineSQL := translate.EngineSQL(portal.Statement.Translation.SQL)
		args := make([]interface{}, len(portal.BoundParams))
		for i, cell := range portal.BoundParams {
			args[i] = cellToNative(cell)
		}

		rowsAffected, err := execWrite(ctx, conn, engineSQL, args)
		if err != nil {
			return false, "", err
		}

		return true, commandTag(portal.Statement.Translation, portal.Statement.RawSQL, rowsAffected), nil
	}

	if portal.stmt == nil {
		return false, "", errors.New("wire: execute against unbound portal")
	}

	var first *stepOutcome
	if row, hasRow, stepDone := portal.takePrimed(); hasRow || stepDone {
		first = &stepOutcome{row: row, hasRow: hasRow, done: stepDone}
	}

	done, err = streamRows(ctx, srv, portal.stmt, portal.Statement.Translation.Table, dw, maxRows, first)
	if err != nil {
		return false, "", err
	}
	if !done {
		// Look one row ahead so PortalSuspended is only sent while rows remain.
		result, err := portal.stmt.Step(ctx)
		if err != nil {
			return false, "", classifyEngineError(err)
		}
		if result == engine.StepRow {
			row := make([]value.Cell, portal.stmt.ColumnCount())
			for i := range row {
				row[i] = portal.stmt.ColumnValue(i)
			}
			portal.primedRow, portal.primedHasRow = row, true
			return false, "", nil
		}
	}
	return true, commandTag(portal.Statement.Translation, portal.Statement.RawSQL, int64(dw.Written())), nil
}
