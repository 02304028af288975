package wire

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/pgwire/catalog"
	"github.com/latticedb/pgwire/engine"
	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/mock"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/translate"
	"github.com/lib/pq/oid"
)

// TServer builds a Server and Session wired to a fresh in-memory engine,
// without opening any network listener, for driving command handlers
// directly.
func TServer(t *testing.T) (*Server, *Session) {
	t.Helper()

	eng, err := engine.Open(engine.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	manager := NewConnManager(eng)
	srv := &Server{
		logger:     mock.NewTestLogger(t),
		Engine:     eng,
		Manager:    manager,
		Catalog:    catalog.New(),
		Translator: translate.New(),
	}

	session := NewSession(manager, "postgres", "postgres", "UTC", 100, 10*time.Minute)
	t.Cleanup(session.Close)

	return srv, session
}

func TestHandleParseSuccess(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewParseReader(t, srv.logger, "test_stmt", "SELECT 1", 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleParse(ctx, session, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerParseComplete, types.ServerMessage(msgType))

	stmt, ok := session.Statements.Get(ctx, "test_stmt")
	require.True(t, ok)
	require.NotNil(t, stmt)
	require.Equal(t, translate.KindSelect, stmt.Translation.Kind)
}

func TestHandleParseMultipleStatements(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	for i, name := range []string{"stmt1", "stmt2", "stmt3"} {
		query := []string{"SELECT 1", "SELECT 2", "SELECT 3"}[i]
		reader := mock.NewParseReader(t, srv.logger, name, query, 0)

		err := srv.handleParse(ctx, session, reader, buffer.NewWriter(srv.logger, &bytes.Buffer{}))
		require.NoError(t, err)

		_, ok := session.Statements.Get(ctx, name)
		require.True(t, ok)
	}
}

func TestHandleParseRejectsMultipleCommands(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewParseReader(t, srv.logger, "bad_stmt", "SELECT 1; SELECT 2", 0)
	outBuf := &bytes.Buffer{}
	writer := buffer.NewWriter(srv.logger, outBuf)

	err := srv.handleParse(ctx, session, reader, writer)
	require.NoError(t, err)

	// The error is buffered until Sync (§4.10/§7), not written immediately.
	require.Zero(t, outBuf.Len())
	require.Error(t, session.ExtendedError())

	_, ok := session.Statements.Get(ctx, "bad_stmt")
	require.False(t, ok)

	require.NoError(t, srv.handleSync(writer, session))
	require.Nil(t, session.ExtendedError())

	result := buffer.NewReader(srv.logger, outBuf, buffer.DefaultBufferSize)
	msgType, _, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(msgType))

	msgType, _, err = result.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerReady, types.ServerMessage(msgType))
}

func TestHandleParseDeclaredParameterOIDs(t *testing.T) {
	t.Parallel()

	srv, session := TServer(t)
	ctx := setSession(context.Background(), session)

	reader := mock.NewParseReader(t, srv.logger, "", "SELECT * FROM person WHERE age > $1", 0)
	// Overwrite the declared parameter count/OID manually since
	// NewParseReader only covers the no-declared-types case.
	_ = reader

	input := &bytes.Buffer{}
	w := mock.NewWriter(t, input)
	w.Start(types.ClientParse)
	w.AddString("")
	w.AddNullTerminate()
	w.AddString("SELECT * FROM person WHERE age > $1")
	w.AddNullTerminate()
	w.AddInt16(1)
	w.AddInt32(int32(oid.T_int4))
	require.NoError(t, w.End())

	in := buffer.NewReader(srv.logger, input, buffer.DefaultBufferSize)
	_, _, err := in.ReadTypedMsg()
	require.NoError(t, err)

	err = srv.handleParse(ctx, session, in, buffer.NewWriter(srv.logger, &bytes.Buffer{}))
	require.NoError(t, err)

	stmt, ok := session.Statements.Get(ctx, "")
	require.True(t, ok)
	require.Equal(t, []oid.Oid{oid.T_int4}, stmt.ParameterOIDs)
}
