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

func TestHandleDescribeStatementSuccess(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	parseStatement(t, srv, session, ctx, "test_stmt", "SELECT 1")

	reader := mock.NewDescribeReader(t, srv.logger, types.DescribeStatement, "test_stmt")
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleDescribe(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)

	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerParameterDescription, types.ServerMessage(msgType))

	msgType, _, err = result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerRowDescription, types.ServerMessage(msgType))
}

func TestHandleDescribePortalSuccess(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	_, err := session.Conn(ctx)
	require.NoError(t, err)

	parseStatement(t, srv, session, ctx, "stmt", "SELECT 1")

	bindReader := mock.NewBindReader(t, srv.logger, "portal", "stmt", 0, 0, 0)
	require.NoError(t, srv.handleBind(ctx, session, bindReader, buffer.NewWriter(srv.logger, &bytes.Buffer{})))

	reader := mock.NewDescribeReader(t, srv.logger, types.DescribePortal, "portal")
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err = srv.handleDescribe(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerRowDescription, types.ServerMessage(msgType))
}

func TestHandleDescribeUnknownStatement(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewDescribeReader(t, srv.logger, types.DescribeStatement, "missing")
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleDescribe(ctx, session, reader, writer)
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

func TestHandleDescribeUnknownPortal(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewDescribeReader(t, srv.logger, types.DescribePortal, "missing")
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleDescribe(ctx, session, reader, writer)
	require.NoError(t, err)

	require.Zero(t, outBuf.Len())
	require.Error(t, session.ExtendedError())

	require.NoError(t, srv.handleSync(writer, session))
	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(msgType))
}
