package wire

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/mock"
	"github.com/latticedb/pgwire/pkg/types"
)

func TestDefaultHandleAuth(t *testing.T) {
	input := bytes.NewBuffer(nil)
	sink := bytes.NewBuffer(nil)

	logger := mock.NewTestLogger(t)
	reader := buffer.NewReader(logger, input, buffer.DefaultBufferSize)
	writer := buffer.NewWriter(logger, sink)

	srv := &Server{logger: logger}
	err := srv.handleAuth(context.Background(), reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(logger, sink, buffer.DefaultBufferSize)
	ty, ln, err := result.ReadTypedMsg()
	require.NoError(t, err)
	require.Greater(t, ln, 0)
	require.Equal(t, types.ServerAuth, types.ServerMessage(ty))

	status, err := result.GetUint32()
	require.NoError(t, err)
	require.Equal(t, authOK, authType(status))
}

func TestClearTextPassword(t *testing.T) {
	expected := "hunter2"

	logger := mock.NewTestLogger(t)
	input := bytes.NewBuffer(nil)
	incoming := buffer.NewWriter(logger, input)
	incoming.Start(types.ServerMessage(types.ClientPassword))
	incoming.AddString(expected)
	incoming.AddNullTerminate()
	require.NoError(t, incoming.End())

	validate := func(username, password string) (bool, error) {
		if password != expected {
			return false, fmt.Errorf("unexpected password: %s", password)
		}
		return true, nil
	}

	sink := bytes.NewBuffer(nil)
	ctx := setClientParameters(context.Background(), Parameters{ParamUsername: "alice"})
	reader := buffer.NewReader(logger, input, buffer.DefaultBufferSize)
	writer := buffer.NewWriter(logger, sink)

	srv := &Server{logger: logger, Auth: ClearTextPassword(validate)}
	err := srv.handleAuth(ctx, reader, writer)
	require.NoError(t, err)

	result := buffer.NewReader(logger, sink, buffer.DefaultBufferSize)
	_, _, err = result.ReadTypedMsg() // AuthenticationCleartextPassword request
	require.NoError(t, err)

	ty, _, err := result.ReadTypedMsg() // AuthenticationOk
	require.NoError(t, err)
	require.Equal(t, types.ServerAuth, types.ServerMessage(ty))
}

func TestClearTextPasswordRejectsWrongPassword(t *testing.T) {
	logger := mock.NewTestLogger(t)
	input := bytes.NewBuffer(nil)
	incoming := buffer.NewWriter(logger, input)
	incoming.Start(types.ServerMessage(types.ClientPassword))
	incoming.AddString("wrong")
	incoming.AddNullTerminate()
	require.NoError(t, incoming.End())

	validate := func(username, password string) (bool, error) {
		return password == "hunter2", nil
	}

	sink := bytes.NewBuffer(nil)
	ctx := setClientParameters(context.Background(), Parameters{ParamUsername: "alice"})
	reader := buffer.NewReader(logger, input, buffer.DefaultBufferSize)
	writer := buffer.NewWriter(logger, sink)

	srv := &Server{logger: logger, Auth: ClearTextPassword(validate)}
	err := srv.handleAuth(ctx, reader, writer)
	require.Error(t, err)

	result := buffer.NewReader(logger, sink, buffer.DefaultBufferSize)
	_, _, err = result.ReadTypedMsg() // AuthenticationCleartextPassword request
	require.NoError(t, err)

	ty, _, err := result.ReadTypedMsg() // ErrorResponse
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(ty))
}
