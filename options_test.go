package wire

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"testing"
	"time"

	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/stretchr/testify/require"
)

func TestOptionLoggerOverridesDefault(t *testing.T) {
	logger := slog.Default()
	srv, err := NewServer(":memory:", Logger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Same(t, logger, srv.logger)
}

func TestOptionVersion(t *testing.T) {
	srv, err := NewServer(":memory:", Version("99.0"))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, "99.0", srv.Version)
}

func TestOptionGlobalParameters(t *testing.T) {
	params := Parameters{"application_name": "test"}
	srv, err := NewServer(":memory:", GlobalParameters(params))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, params, srv.Parameters)
}

func TestOptionBufferedMessageSize(t *testing.T) {
	srv, err := NewServer(":memory:", BufferedMessageSize(4096))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, 4096, srv.BufferedMsgSize)
}

func TestOptionSessionAuthStrategy(t *testing.T) {
	auth := ClearTextPassword(func(username, password string) (bool, error) {
		return username == "alice" && password == "secret", nil
	})

	srv, err := NewServer(":memory:", SessionAuthStrategy(auth))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.NotNil(t, srv.Auth)
}

func TestOptionDefaultTimezone(t *testing.T) {
	srv, err := NewServer(":memory:", DefaultTimezone("America/New_York"))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, "America/New_York", srv.DefaultTimezone)
}

func TestOptionPortalCacheSize(t *testing.T) {
	srv, err := NewServer(":memory:", PortalCacheSize(7))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, 7, srv.PortalCacheSize)
}

func TestOptionPortalStaleAfter(t *testing.T) {
	srv, err := NewServer(":memory:", PortalStaleAfter(30*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, 30*time.Second, srv.PortalStaleAfter)
}

func TestOptionCloseConn(t *testing.T) {
	called := false
	hook := func(ctx context.Context) error {
		called = true
		return nil
	}

	srv, err := NewServer(":memory:", CloseConn(hook))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.NotNil(t, srv.CloseConn)
	require.NoError(t, srv.CloseConn(context.Background()))
	require.True(t, called)
}

func TestOptionTerminateConn(t *testing.T) {
	called := false
	hook := func(ctx context.Context) error {
		called = true
		return nil
	}

	srv, err := NewServer(":memory:", TerminateConn(hook))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.NotNil(t, srv.TerminateConn)
	require.NoError(t, srv.TerminateConn(context.Background()))
	require.True(t, called)
}

func TestOptionCancelRequestOverridesDefault(t *testing.T) {
	called := false
	fn := func(ctx context.Context, processID, secretKey int32) error {
		called = true
		return nil
	}

	srv, err := NewServer(":memory:", CancelRequest(fn))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.NoError(t, srv.CancelRequest(context.Background(), 1, 1))
	require.True(t, called)
}

func TestOptionTLSConfig(t *testing.T) {
	cfg := &tls.Config{}
	srv, err := NewServer(":memory:", TLSConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Same(t, cfg, srv.TLSConfig)
}

func TestOptionClientCAWithoutTLSConfig(t *testing.T) {
	pool := x509.NewCertPool()
	srv, err := NewServer(":memory:", ClientCA(pool, tls.RequireAndVerifyClientCert))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Same(t, pool, srv.ClientCAs)
	require.Equal(t, tls.RequireAndVerifyClientCert, srv.ClientAuth)
}

func TestOptionClientCAPropagatesToExistingTLSConfig(t *testing.T) {
	cfg := &tls.Config{}
	pool := x509.NewCertPool()

	srv, err := NewServer(":memory:", TLSConfig(cfg), ClientCA(pool, tls.RequireAnyClientCert))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Same(t, pool, cfg.ClientCAs)
	require.Equal(t, tls.RequireAnyClientCert, cfg.ClientAuth)
}

func TestDefaultOptionsAreSet(t *testing.T) {
	srv, err := NewServer(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, 100, srv.PortalCacheSize)
	require.Equal(t, 10*time.Minute, srv.PortalStaleAfter)
	require.Equal(t, "UTC", srv.DefaultTimezone)
	require.NotNil(t, srv.CancelRequest)
	require.True(t, srv.DataRowBatching)
	require.Equal(t, buffer.DefaultDataRowBatchSize, srv.DataRowBatchSize)
	require.False(t, srv.UseDirectWriter)
}

func TestOptionDataRowBatchSize(t *testing.T) {
	srv, err := NewServer(":memory:", DataRowBatchSize(25))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.Equal(t, 25, srv.DataRowBatchSize)
}

func TestOptionDisableDataRowBatching(t *testing.T) {
	srv, err := NewServer(":memory:", DisableDataRowBatching())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.False(t, srv.DataRowBatching)
}

func TestOptionUseDirectWriter(t *testing.T) {
	srv, err := NewServer(":memory:", UseDirectWriter())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.True(t, srv.UseDirectWriter)
}

func TestNewFrameWriterSelectsBackend(t *testing.T) {
	srv, err := NewServer(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	var buf bytes.Buffer

	bufferedWriter, batch := srv.newFrameWriter(&buf)
	require.IsType(t, &buffer.Writer{}, bufferedWriter)
	require.NotNil(t, batch)

	srv.UseDirectWriter = true
	directWriter, _ := srv.newFrameWriter(&buf)
	require.IsType(t, &buffer.DirectWriter{}, directWriter)

	srv.DataRowBatching = false
	_, noBatch := srv.newFrameWriter(&buf)
	require.Nil(t, noBatch)
}
