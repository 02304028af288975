package wire

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/mock"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/value"
)

func bindPortalFor(t *testing.T, srv *Server, session *Session, ctx context.Context, portal, stmt string) {
	t.Helper()
	reader := mock.NewBindReader(t, srv.logger, portal, stmt, 0, 0, 0)
	err := srv.handleBind(ctx, session, reader, buffer.NewWriter(srv.logger, &bytes.Buffer{}))
	require.NoError(t, err)
}

func TestHandleExecuteSelectRoundTrip(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setTypeInfo(setSession(context.Background(), session), value.NewConnInfo())

	_, err := session.Conn(ctx)
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "stmt1", "SELECT 'Hello World'")
	bindPortalFor(t, srv, session, ctx, "portal1", "stmt1")

	reader := mock.NewExecuteReader(t, srv.logger, "portal1", 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleExecute(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)

	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerDataRow, types.ServerMessage(msgType))

	msgType, _, err = result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerCommandComplete, types.ServerMessage(msgType))
}

func TestHandleExecuteUnknownPortal(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewExecuteReader(t, srv.logger, "missing", 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleExecute(ctx, session, reader, writer)
	require.NoError(t, err)

	// Buffered until Sync (§4.10/§7) rather than written immediately.
	require.Zero(t, outBuf.Len())
	require.Error(t, session.ExtendedError())

	require.NoError(t, srv.handleSync(writer, session))
	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(msgType))
}

func TestHandleExecuteDML(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	conn, err := session.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "ins", "INSERT INTO person (name) VALUES ('John')")
	bindPortalFor(t, srv, session, ctx, "", "ins")

	reader := mock.NewExecuteReader(t, srv.logger, "", 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleExecute(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerCommandComplete, types.ServerMessage(msgType))
}

func TestHandleExecutePortalSuspendResume(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setTypeInfo(setSession(context.Background(), session), value.NewConnInfo())

	conn, err := session.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO person (name) VALUES ('a'), ('b'), ('c')")
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "sel", "SELECT name FROM person ORDER BY id")
	bindPortalFor(t, srv, session, ctx, "p", "sel")

	first := mock.NewExecuteReader(t, srv.logger, "p", 1)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleExecute(ctx, session, first, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerDataRow, types.ServerMessage(msgType))

	msgType, _, err = result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerPortalSuspended, types.ServerMessage(msgType))

	portal, ok := session.Portals.Get(ctx, "p")
	require.True(t, ok)
	require.Equal(t, PortalSuspendedState, portal.State)
}
