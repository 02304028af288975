package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"trailing semicolon", "SELECT 1;", []string{"SELECT 1"}},
		{"two statements", "SELECT 1; SELECT 2", []string{"SELECT 1", " SELECT 2"}},
		{"semicolon in string literal", "SELECT ';'", []string{"SELECT ';'"}},
		{"semicolon in line comment", "SELECT 1 -- foo; bar\n", []string{"SELECT 1 -- foo; bar\n"}},
		{"semicolon in block comment", "SELECT 1 /* a; b */; SELECT 2", []string{"SELECT 1 /* a; b */", " SELECT 2"}},
		{"blank only", "  ; ;  ", nil},
		{"doubled quote escape", "SELECT 'it''s; fine'", []string{"SELECT 'it''s; fine'"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, splitStatements(tt.input))
		})
	}
}

func TestNewErrUnknownStatement(t *testing.T) {
	err := NewErrUnknownStatement("my_stmt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "my_stmt")
}

func TestNewErrUnknownPortal(t *testing.T) {
	err := NewErrUnknownPortal("my_portal")
	require.Error(t, err)
	require.Contains(t, err.Error(), "my_portal")
}

func TestNewErrMultipleCommandsStatements(t *testing.T) {
	err := NewErrMultipleCommandsStatements()
	require.Error(t, err)
}

func TestSkipExtendedNilSession(t *testing.T) {
	require.False(t, skipExtended(nil))
}

func TestSkipExtendedNoError(t *testing.T) {
	_, session := TServer(t)
	require.False(t, skipExtended(session))
}

func TestSkipExtendedAfterBufferedError(t *testing.T) {
	_, session := TServer(t)
	session.BufferExtendedError(NewErrUnknownPortal("p"))
	require.True(t, skipExtended(session))
}

func TestSessionBufferExtendedErrorKeepsFirst(t *testing.T) {
	_, session := TServer(t)

	first := NewErrUnknownStatement("a")
	second := NewErrUnknownStatement("b")

	require.NoError(t, session.BufferExtendedError(first))
	require.NoError(t, session.BufferExtendedError(second))

	require.Same(t, first, session.ExtendedError())
}
