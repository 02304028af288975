package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/latticedb/pgwire/codes"
	psqlerr "github.com/latticedb/pgwire/errors"
	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/value"
	"github.com/lib/pq/oid"
)

// NewErrUnimplementedMessageType is called whenever an unimplemented message
// type is sent. This error indicates to the client that the sent message cannot
// be processed at this moment in time.
func NewErrUnimplementedMessageType(t types.ClientMessage) error {
	err := fmt.Errorf("unimplemented client message type: %d", t)
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.ConnectionDoesNotExist), psqlerr.LevelFatal)
}

// NewErrUnknownStatement is returned whenever no prepared statement has
// been found for the given name.
func NewErrUnknownStatement(name string) error {
	err := fmt.Errorf("unknown prepared statement: %s", name)
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.InvalidPreparedStatementDefinition), psqlerr.LevelFatal)
}

// NewErrUnknownPortal is returned whenever no portal has been found for the
// given name.
func NewErrUnknownPortal(name string) error {
	err := fmt.Errorf("unknown portal: %s", name)
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.InvalidPreparedStatementDefinition), psqlerr.LevelFatal)
}

// NewErrUndefinedStatement is returned whenever no statement has been defined
// within the incoming query.
func NewErrUndefinedStatement() error {
	err := errors.New("no statement has been defined")
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.Syntax), psqlerr.LevelError)
}

// NewErrMultipleCommandsStatements is returned whenever multiple statements
// have been given within a single query during the extended query protocol.
func NewErrMultipleCommandsStatements() error {
	err := errors.New("cannot insert multiple commands into a prepared statement")
	return psqlerr.WithSeverity(psqlerr.WithCode(err, codes.Syntax), psqlerr.LevelError)
}

// splitStatements splits a Simple-query string on top-level `;` boundaries,
// ignoring semicolons inside single/double-quoted strings or `--`/`/* */`
// comments, then drops any resulting empty statements (trailing semicolon,
// blank lines between statements). The Simple query protocol allows a
// single query string to carry any number of statements (§4.2).
func splitStatements(sql string) []string {
	var stmts []string
	var buf strings.Builder

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch {
		case c == '\'' || c == '"':
			quote := c
			buf.WriteRune(c)
			i++
			for i < len(runes) {
				buf.WriteRune(runes[i])
				if runes[i] == quote {
					// NOTE: doubled quote characters escape themselves
					// inside a quoted literal/identifier.
					if i+1 < len(runes) && runes[i+1] == quote {
						i++
						buf.WriteRune(runes[i])
					} else {
						break
					}
				}
				i++
			}
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				buf.WriteRune(runes[i])
				i++
			}
			if i < len(runes) {
				buf.WriteRune(runes[i])
			}
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			buf.WriteRune(c)
			i++
			buf.WriteRune(runes[i])
			i++
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				buf.WriteRune(runes[i])
				i++
			}
			if i < len(runes) {
				buf.WriteRune(runes[i])
				i++
				if i < len(runes) {
					buf.WriteRune(runes[i])
				}
			}
		case c == ';':
			stmts = append(stmts, buf.String())
			buf.Reset()
			continue
		default:
			buf.WriteRune(c)
		}
	}

	if strings.TrimSpace(buf.String()) != "" {
		stmts = append(stmts, buf.String())
	}

	var out []string
	for _, s := range stmts {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// consumeCommands consumes incoming commands sent over the Postgres wire connection.
// Commands consumed from the connection are returned through a go channel.
// Responses for the given message type are written back to the client.
// This method keeps consuming messages until the client issues a close message
// or the connection is terminated.
func (srv *Server) consumeCommands(ctx context.Context, conn net.Conn, reader *buffer.Reader, writer buffer.FrameWriter) error {
	srv.logger.Debug("ready for query... starting to consume commands")

	if err := readyForQuery(writer, types.ServerIdle); err != nil {
		return err
	}

	for {
		if err := srv.consumeSingleCommand(ctx, reader, writer, srv.handleCommand(conn)); err != nil {
			return err
		}
	}
}

type commandHandler func(context.Context, types.ClientMessage, *buffer.Reader, buffer.FrameWriter) error

func (srv *Server) consumeSingleCommand(ctx context.Context, reader *buffer.Reader, writer buffer.FrameWriter, handleCommand commandHandler) error {
	t, length, err := reader.ReadTypedMsg()
	if err == io.EOF {
		return nil
	}

	// NOTE: we could recover from this scenario
	if errors.Is(err, buffer.ErrMessageSizeExceeded) {
		return handleMessageSizeExceeded(reader, writer, err)
	}

	if err != nil {
		return err
	}

	if srv.closing.Load() {
		return nil
	}

	// NOTE: we increase the wait group by one in order to make sure that idle
	// connections are not blocking a close.
	srv.wg.Add(1)
	srv.logger.Debug("<- incoming command", slog.Int("length", length), slog.String("type", t.String()))
	err = handleCommand(ctx, t, reader, writer)
	srv.wg.Done()
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// handleMessageSizeExceeded attempts to unwrap the given error message as
// message size exceeded. The expected message size will be consumed and
// discarded from the given reader. An error message is written to the client
// once the expected message size is read.
func handleMessageSizeExceeded(reader *buffer.Reader, writer buffer.FrameWriter, exceeded error) (err error) {
	unwrapped, has := buffer.UnwrapMessageSizeExceeded(exceeded)
	if !has {
		return exceeded
	}

	if err = reader.Slurp(unwrapped.Size); err != nil {
		return err
	}

	return ErrorCode(writer, exceeded, types.ServerIdle)
}

// handleCommand handles the given client message. A client message includes a
// message type and reader buffer containing the actual message. The type
// indicates the action requested by the client.
// https://www.postgresql.org/docs/14/protocol-message-formats.html
func (srv *Server) handleCommand(conn net.Conn) commandHandler {
	return func(ctx context.Context, t types.ClientMessage, reader *buffer.Reader, writer buffer.FrameWriter) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		session := SessionFromContext(ctx)
		if session != nil {
			session.SetCancel(cancel)
			defer session.SetCancel(nil)
		}

		switch t {
		case types.ClientSimpleQuery:
			return srv.handleSimpleQuery(ctx, session, reader, writer)
		case types.ClientExecute:
			if skipExtended(session) {
				return nil
			}
			return srv.handleExecute(ctx, session, reader, writer)
		case types.ClientParse:
			if skipExtended(session) {
				return nil
			}
			return srv.handleParse(ctx, session, reader, writer)
		case types.ClientDescribe:
			if skipExtended(session) {
				return nil
			}
			return srv.handleDescribe(ctx, session, reader, writer)
		case types.ClientSync:
			// At completion of each series of extended-query messages, the
			// frontend issues a Sync. This resynchronization point is
			// where a buffered extended-query error (§4.10/§7) is finally
			// flushed, and where the backend reports the session's
			// resulting transaction status.
			return srv.handleSync(writer, session)
		case types.ClientBind:
			if skipExtended(session) {
				return nil
			}
			return srv.handleBind(ctx, session, reader, writer)
		case types.ClientFlush:
			// The Flush message asks for delivery of any buffered output.
			// It is not acted on here: DataRow messages held back by
			// buffer.BatchingWriter go out with the next non-DataRow
			// message the backend writes.
			return nil
		case types.ClientCopyData, types.ClientCopyDone, types.ClientCopyFail:
			// The COPY protocol is out of scope (see DESIGN.md); these
			// messages are only ever sent unsolicited and are ignored.
			return nil
		case types.ClientClose:
			return srv.handleClose(ctx, session, reader, writer)
		case types.ClientTerminate:
			if err := srv.handleConnTerminate(ctx, session); err != nil {
				return err
			}

			if err := conn.Close(); err != nil {
				return err
			}

			return io.EOF
		default:
			return ErrorCode(writer, NewErrUnimplementedMessageType(t), session.Status())
		}
	}
}

// skipExtended reports whether an incoming Parse/Bind/Describe/Execute
// message must be silently discarded because an earlier message in this
// extended-query series already failed; PostgreSQL clients expect no
// response to these messages until Sync clears the error (§4.10/§7).
func skipExtended(session *Session) bool {
	return session != nil && session.ExtendedError() != nil
}

// handleSync resynchronizes at the end of an extended-query message
// series. A buffered error from an earlier Parse/Bind/Describe/Execute in
// this series is flushed here — as the ErrorResponse, followed by
// ReadyForQuery — instead of at the point it occurred.
func (srv *Server) handleSync(writer buffer.FrameWriter, session *Session) error {
	if session == nil {
		return readyForQuery(writer, types.ServerIdle)
	}

	if err := session.ExtendedError(); err != nil {
		session.ClearExtendedError()
		return ErrorCode(writer, err, session.Status())
	}

	return readyForQuery(writer, session.Status())
}

// handleSimpleQuery executes every statement in a Simple-query string in
// order (§4.2), stopping at the first error. It never binds parameters.
func (srv *Server) handleSimpleQuery(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	query, err := reader.GetString()
	if err != nil {
		return err
	}

	srv.logger.Debug("incoming simple query", slog.String("query", query))

	if strings.TrimSpace(query) == "" {
		writer.Start(types.ServerEmptyQuery)
		if err := writer.End(); err != nil {
			return err
		}

		return readyForQuery(writer, session.Status())
	}

	for _, raw := range splitStatements(query) {
		dw := NewDataWriter(ctx, nil, nil, writer)

		if err := srv.runSimpleStatement(ctx, session, raw, dw); err != nil {
			if werr := ErrorCode(writer, err, session.Status()); werr != nil {
				return werr
			}
			return nil
		}
	}

	return readyForQuery(writer, session.Status())
}

// handleParse prepares a statement name for later Bind/Execute (§4.3). The
// parameter type OIDs the client predeclares (if any) are recorded;
// undeclared parameters default to text, the safe choice for SQLite's
// dynamically-typed columns.
func (srv *Server) handleParse(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	name, err := reader.GetString()
	if err != nil {
		return err
	}

	query, err := reader.GetString()
	if err != nil {
		return err
	}

	paramCount, err := reader.GetUint16()
	if err != nil {
		return err
	}

	srv.logger.Debug("predefined parameters", slog.Int("parameters", int(paramCount)))

	declared := make([]oid.Oid, paramCount)
	for i := uint16(0); i < paramCount; i++ {
		o, err := reader.GetUint32()
		if err != nil {
			return err
		}
		declared[i] = oid.Oid(o)
	}

	if len(splitStatements(query)) > 1 {
		return session.BufferExtendedError(NewErrMultipleCommandsStatements())
	}

	stmt, err := srv.translateStatement(name, query)
	if err != nil {
		return session.BufferExtendedError(err)
	}

	stmt.ParameterOIDs = make([]oid.Oid, stmt.Translation.ParamCount)
	for i := range stmt.ParameterOIDs {
		stmt.ParameterOIDs[i] = oid.T_text
		if i < len(declared) && declared[i] != 0 {
			stmt.ParameterOIDs[i] = declared[i]
		}
	}

	srv.logger.Debug("incoming extended query", slog.String("query", query), slog.String("name", name), slog.Int("parameters", len(stmt.ParameterOIDs)))

	if name != "" {
		if _, exists := session.Statements.Get(ctx, name); exists {
			srv.logger.Info("replacing prepared statement without Close", slog.String("name", name))
		}
	}

	if err := session.Statements.Set(ctx, name, stmt); err != nil {
		return session.BufferExtendedError(err)
	}

	writer.Start(types.ServerParseComplete)
	return writer.End()
}

func (srv *Server) handleDescribe(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	d, err := reader.GetBytes(1)
	if err != nil {
		return err
	}

	name, err := reader.GetString()
	if err != nil {
		return err
	}

	srv.logger.Debug("incoming describe request", slog.String("type", types.DescribeMessage(d[0]).String()), slog.String("name", name))

	switch types.DescribeMessage(d[0]) {
	case types.DescribeStatement:
		stmt, ok := session.Statements.Get(ctx, name)
		if !ok {
			return session.BufferExtendedError(NewErrUnknownStatement(name))
		}

		if err := writeParameterDescription(writer, stmt.ParameterOIDs); err != nil {
			return err
		}

		// NOTE: the result format codes are not yet known at this point —
		// Bind has not been issued — so RowDescription reports text format
		// for every column, per protocol.
		return writeColumnDescription(ctx, writer, nil, stmt.Columns)
	case types.DescribePortal:
		portal, ok := session.Portals.Get(ctx, name)
		if !ok {
			return session.BufferExtendedError(NewErrUnknownPortal(name))
		}

		return writeColumnDescription(ctx, writer, portal.ResultFormats, portal.Statement.Columns)
	}

	return session.BufferExtendedError(fmt.Errorf("unknown describe command: %s", string(d[0])))
}

// https://www.postgresql.org/docs/15/protocol-message-formats.html
func writeParameterDescription(writer buffer.FrameWriter, parameters []oid.Oid) error {
	writer.Start(types.ServerParameterDescription)
	writer.AddInt16(int16(len(parameters)))

	for _, parameter := range parameters {
		writer.AddInt32(int32(parameter))
	}

	return writer.End()
}

// writeColumnDescription attempts to write the statement column descriptions
// back to the writer buffer. Information about the returned columns is
// written to the client.
// https://www.postgresql.org/docs/15/protocol-message-formats.html
func writeColumnDescription(ctx context.Context, writer buffer.FrameWriter, formats []FormatCode, columns Columns) error {
	if len(columns) == 0 {
		writer.Start(types.ServerNoData)
		return writer.End()
	}

	return columns.Define(ctx, writer, formats)
}

// handleBind binds a prepared statement's parameters into a new or
// replaced portal (§4.4). SELECT portals prime their cursor immediately so
// a following Describe(Portal) can answer accurately before Execute.
func (srv *Server) handleBind(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	name, err := reader.GetString()
	if err != nil {
		return err
	}

	statementName, err := reader.GetString()
	if err != nil {
		return err
	}

	stmt, ok := session.Statements.Get(ctx, statementName)
	if !ok {
		return session.BufferExtendedError(NewErrUnknownStatement(statementName))
	}

	params, err := readBindParameters(reader, stmt.ParameterOIDs)
	if err != nil {
		return err
	}

	resultFormats, err := readColumnFormats(reader)
	if err != nil {
		return err
	}

	cells := make([]value.Cell, len(params))
	for i, p := range params {
		cell, err := value.DecodeParam(TypeInfo(ctx), p.oid, p.binary, p.raw)
		if err != nil {
			return session.BufferExtendedError(psqlerr.WithCode(err, codes.DatatypeMismatch))
		}
		cells[i] = cell
	}

	portal := &Portal{
		Name:          name,
		Statement:     stmt,
		BoundParams:   cells,
		ResultFormats: resultFormats,
	}

	// bindPortal only touches the engine for SELECT statements (it primes
	// the cursor so Describe(Portal) can answer before Execute); for every
	// other kind, including the BEGIN/COMMIT/SET utility statements
	// execUtility intercepts at Execute time, it is a no-op.
	conn, err := session.Conn(ctx)
	if err != nil {
		return session.BufferExtendedError(psqlerr.WithCode(err, codes.Io))
	}

	if err := bindPortal(ctx, srv, conn, portal); err != nil {
		return session.BufferExtendedError(err)
	}

	if err := session.Portals.Bind(ctx, portal); err != nil {
		return session.BufferExtendedError(err)
	}

	writer.Start(types.ServerBindComplete)
	return writer.End()
}

type bindParam struct {
	oid    oid.Oid
	binary bool
	raw    []byte
}

// readBindParameters reads the format codes and values of a Bind message's
// parameters (§4.4). oids supplies the statement's declared parameter
// types, consulted to pick the right binary decoder.
func readBindParameters(reader *buffer.Reader, oids []oid.Oid) ([]bindParam, error) {
	formatCount, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}

	defaultFormat := TextFormat
	formats := make([]FormatCode, formatCount)
	for i := uint16(0); i < formatCount; i++ {
		f, err := reader.GetUint16()
		if err != nil {
			return nil, err
		}
		if formatCount == 1 {
			defaultFormat = FormatCode(f)
		}
		formats[i] = FormatCode(f)
	}

	valueCount, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}

	params := make([]bindParam, valueCount)
	for i := 0; i < int(valueCount); i++ {
		length, err := reader.GetUint32()
		if err != nil {
			return nil, err
		}

		var raw []byte
		if int32(length) >= 0 {
			raw, err = reader.GetBytes(int(length))
			if err != nil {
				return nil, err
			}
		}

		format := defaultFormat
		if len(formats) > i {
			format = formats[i]
		}

		o := oid.T_text
		if i < len(oids) {
			o = oids[i]
		}

		params[i] = bindParam{oid: o, binary: format == BinaryFormat, raw: raw}
	}

	return params, nil
}

func readColumnFormats(reader *buffer.Reader) ([]FormatCode, error) {
	length, err := reader.GetUint16()
	if err != nil {
		return nil, err
	}

	formats := make([]FormatCode, length)
	for i := uint16(0); i < length; i++ {
		f, err := reader.GetUint16()
		if err != nil {
			return nil, err
		}
		formats[i] = FormatCode(f)
	}

	return formats, nil
}

// handleExecute runs (or resumes) a bound portal (§4.5). Transaction-
// control and SET statements bound through the extended protocol are
// intercepted the same way the Simple query path intercepts them, never
// reaching the engine.
func (srv *Server) handleExecute(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	name, err := reader.GetString()
	if err != nil {
		return err
	}

	limit, err := reader.GetUint32()
	if err != nil {
		return err
	}

	srv.logger.Debug("executing", slog.String("name", name), slog.Uint64("limit", uint64(limit)))

	portal, ok := session.Portals.Get(ctx, name)
	if !ok {
		return session.BufferExtendedError(NewErrUnknownPortal(name))
	}

	if tag, isUtility := execUtility(session, portal.Statement); isUtility {
		return NewDataWriter(ctx, nil, nil, writer).Complete(tag)
	}

	if session.Tx == TxFailed {
		return session.BufferExtendedError(psqlerr.WithSeverity(psqlerr.WithCode(errors.New("current transaction is aborted, commands ignored until end of transaction block"), codes.InFailedSQLTransaction), psqlerr.LevelError))
	}

	conn, err := session.Conn(ctx)
	if err != nil {
		return session.BufferExtendedError(psqlerr.WithCode(err, codes.Io))
	}

	dw := NewDataWriter(ctx, portal.Statement.Columns, portal.ResultFormats, writer)

	done, tag, err := executePortal(ctx, srv, conn, portal, dw, int(limit))
	if err != nil {
		session.Fail()
		return session.BufferExtendedError(err)
	}

	if !done {
		portal.State = PortalSuspendedState
		return dw.Suspend()
	}

	portal.State = PortalDone
	return dw.Complete(tag)
}

// handleClose closes a prepared statement or portal (§4.6); ClientClose
// never carries an associated error even if the name is unknown, matching
// PostgreSQL's own leniency here.
func (srv *Server) handleClose(ctx context.Context, session *Session, reader *buffer.Reader, writer buffer.FrameWriter) error {
	d, err := reader.GetBytes(1)
	if err != nil {
		return err
	}

	name, err := reader.GetString()
	if err != nil {
		return err
	}

	switch types.DescribeMessage(d[0]) {
	case types.DescribeStatement:
		if err := session.Statements.Close(ctx, name); err != nil {
			return err
		}
	case types.DescribePortal:
		if err := session.Portals.Close(ctx, name); err != nil {
			return err
		}
	}

	writer.Start(types.ServerCloseComplete)
	return writer.End()
}

func (srv *Server) handleConnTerminate(ctx context.Context, session *Session) error {
	if session != nil {
		session.Close()
	}

	if srv.TerminateConn == nil {
		return nil
	}

	return srv.TerminateConn(ctx)
}
