package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/pgwire/codes"
	pgerror "github.com/latticedb/pgwire/errors"
	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/mock"
	"github.com/latticedb/pgwire/pkg/types"
)

func TestErrorCodeIncludesReadyForQuery(t *testing.T) {
	sink := bytes.NewBuffer(nil)
	writer := buffer.NewWriter(mock.NewTestLogger(t), sink)

	err := ErrorCode(writer, pgerror.WithCode(errors.New("syntax error"), codes.Syntax), types.ServerIdle)
	require.NoError(t, err)

	reader := buffer.NewReader(mock.NewTestLogger(t), sink, buffer.DefaultBufferSize)

	msgType, _, err := reader.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(msgType))

	msgType, _, err = reader.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerReady, types.ServerMessage(msgType))
}

func TestErrorCodeAuthFailureSkipsReadyForQuery(t *testing.T) {
	sink := bytes.NewBuffer(nil)
	writer := buffer.NewWriter(mock.NewTestLogger(t), sink)

	err := ErrorCode(writer, pgerror.WithCode(errors.New("invalid username/password"), codes.InvalidPassword), types.ServerIdle)
	require.NoError(t, err)

	reader := buffer.NewReader(mock.NewTestLogger(t), sink, buffer.DefaultBufferSize)

	msgType, _, err := reader.ReadTypedMsg()
	require.NoError(t, err)
	require.Equal(t, types.ServerErrorResponse, types.ServerMessage(msgType))

	_, _, err = reader.ReadTypedMsg()
	require.Error(t, err)
}

func TestErrorCodeReportsTransactionStatus(t *testing.T) {
	sink := bytes.NewBuffer(nil)
	writer := buffer.NewWriter(mock.NewTestLogger(t), sink)

	err := ErrorCode(writer, pgerror.WithCode(errors.New("constraint failed"), codes.UniqueViolation), types.ServerTransactionFailed)
	require.NoError(t, err)

	reader := buffer.NewReader(mock.NewTestLogger(t), sink, buffer.DefaultBufferSize)
	_, _, err = reader.ReadTypedMsg() // ErrorResponse
	require.NoError(t, err)

	_, _, err = reader.ReadTypedMsg() // ReadyForQuery
	require.NoError(t, err)

	status, err := reader.GetBytes(1)
	require.NoError(t, err)
	require.Equal(t, byte(types.ServerTransactionFailed), status[0])
}
