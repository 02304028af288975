package wire

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/mock"
	"github.com/latticedb/pgwire/pkg/types"
)

func parseStatement(t *testing.T, srv *Server, session *Session, ctx context.Context, name, query string) {
	t.Helper()
	reader := mock.NewParseReader(t, srv.logger, name, query, 0)
	err := srv.handleParse(ctx, session, reader, buffer.NewWriter(srv.logger, &bytes.Buffer{}))
	require.NoError(t, err)
}

func TestHandleBindSuccess(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	_, err := session.Conn(ctx)
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "stmt", "SELECT 1")

	reader := mock.NewBindReader(t, srv.logger, "portal", "stmt", 0, 0, 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleBind(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerBindComplete, types.ServerMessage(msgType))

	portal, ok := session.Portals.Get(ctx, "portal")
	require.True(t, ok)
	require.NotNil(t, portal.Statement.Columns)
}

func TestHandleBindUnknownStatement(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewBindReader(t, srv.logger, "portal", "missing", 0, 0, 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleBind(ctx, session, reader, writer)
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

func TestHandleBindSkippedAfterExtendedError(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	session.BufferExtendedError(NewErrUnknownStatement("whatever"))

	reader := mock.NewBindReader(t, srv.logger, "portal", "stmt", 0, 0, 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	require.True(t, skipExtended(session))

	_, ok := session.Portals.Get(ctx, "portal")
	require.False(t, ok)
	require.Zero(t, outBuf.Len())
	_ = reader
	_ = writer
}

func TestHandleBindDMLDoesNotPrimeColumns(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	conn, err := session.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "ins", "INSERT INTO person (name) VALUES ('a')")

	reader := mock.NewBindReader(t, srv.logger, "", "ins", 0, 0, 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleBind(ctx, session, reader, writer)
	require.NoError(t, err)

	portal, ok := session.Portals.Get(ctx, "")
	require.True(t, ok)
	require.Nil(t, portal.Statement.Columns)
}
