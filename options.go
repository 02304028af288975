package wire

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"time"
)

// OptionFn options pattern used to define and set options for the given
// PostgreSQL server.
type OptionFn func(*Server) error

// Logger overrides the default slog logger used by the server.
func Logger(logger *slog.Logger) OptionFn {
	return func(srv *Server) error {
		srv.logger = logger
		return nil
	}
}

// Version overrides the advertised PostgreSQL server_version parameter
// (§6.3's ParameterStatus exchange).
func Version(version string) OptionFn {
	return func(srv *Server) error {
		srv.Version = version
		return nil
	}
}

// GlobalParameters sets the static server parameters announced to every
// connecting client in addition to the ones the server computes itself
// (client_encoding, server_encoding, is_superuser, ...).
func GlobalParameters(params Parameters) OptionFn {
	return func(srv *Server) error {
		srv.Parameters = params
		return nil
	}
}

// BufferedMessageSize sets the maximum buffered size of a single incoming
// client message. A value of zero or below selects buffer.DefaultBufferSize.
func BufferedMessageSize(size int) OptionFn {
	return func(srv *Server) error {
		srv.BufferedMsgSize = size
		return nil
	}
}

// SessionAuthStrategy sets the authentication strategy used to authenticate
// incoming client connections (§6.2's StartupMessage/authentication phase).
func SessionAuthStrategy(auth AuthStrategy) OptionFn {
	return func(srv *Server) error {
		srv.Auth = auth
		return nil
	}
}

// DefaultTimezone overrides the timezone new sessions start with before a
// client issues `SET TIME ZONE` (§4.7).
func DefaultTimezone(tz string) OptionFn {
	return func(srv *Server) error {
		srv.DefaultTimezone = tz
		return nil
	}
}

// PortalCacheSize caps how many named portals a session may hold open at
// once before the least-recently-used is evicted (§3's Portal cache entry).
func PortalCacheSize(n int) OptionFn {
	return func(srv *Server) error {
		srv.PortalCacheSize = n
		return nil
	}
}

// PortalStaleAfter sets how long a named portal may sit untouched before a
// session's staleness sweep reclaims it. A value of zero disables the
// sweep.
func PortalStaleAfter(d time.Duration) OptionFn {
	return func(srv *Server) error {
		srv.PortalStaleAfter = d
		return nil
	}
}

// DataRowBatchSize overrides the number of consecutive DataRow messages the
// Protocol Writer accumulates before flushing to the transport (§4.2,
// §6.4). The default is buffer.DefaultDataRowBatchSize (100); values below
// 1 also select that default.
func DataRowBatchSize(n int) OptionFn {
	return func(srv *Server) error {
		srv.DataRowBatchSize = n
		return nil
	}
}

// DisableDataRowBatching turns off §4.2's batched DataRow emission: every
// DataRow flushes to the transport as soon as it is written, same as every
// other message type. Equivalent to the §6.4 "batch enabled" = false
// configuration entry.
func DisableDataRowBatching() OptionFn {
	return func(srv *Server) error {
		srv.DataRowBatching = false
		return nil
	}
}

// UseDirectWriter selects buffer.DirectWriter as the Protocol Writer
// backend instead of the default buffer.Writer (§4.2, §6.4's "zero-copy
// writer" configuration entry). Both backends satisfy the same FrameWriter
// contract and preserve ordering and batching semantics; DirectWriter
// assembles a message's frame in a plain byte slice rather than a
// bytes.Buffer.
func UseDirectWriter() OptionFn {
	return func(srv *Server) error {
		srv.UseDirectWriter = true
		return nil
	}
}

// CloseConn registers a hook invoked whenever a client connection is
// terminated (by a Terminate message or the connection dropping).
func CloseConn(fn CloseFn) OptionFn {
	return func(srv *Server) error {
		srv.CloseConn = fn
		return nil
	}
}

// TerminateConn registers a hook invoked when a client explicitly sends a
// Terminate message, before the connection is closed.
func TerminateConn(fn CloseFn) OptionFn {
	return func(srv *Server) error {
		srv.TerminateConn = fn
		return nil
	}
}

// CancelRequest overrides the default CancelRequest handling (which looks
// up the targeted session by process ID and validates its secret key).
// Supplying a custom CancelFn replaces that lookup entirely.
func CancelRequest(fn CancelFn) OptionFn {
	return func(srv *Server) error {
		srv.CancelRequest = fn
		return nil
	}
}

// TLSConfig enables TLS on incoming client connections using the given
// configuration, requiring its Certificates to already be populated.
func TLSConfig(cfg *tls.Config) OptionFn {
	return func(srv *Server) error {
		srv.TLSConfig = cfg
		return nil
	}
}

// ClientCA configures the certificate pool used to verify client
// certificates and the policy under which they are required, enabling
// mutual TLS.
func ClientCA(pool *x509.CertPool, auth tls.ClientAuthType) OptionFn {
	return func(srv *Server) error {
		srv.ClientCAs = pool
		srv.ClientAuth = auth
		if srv.TLSConfig != nil {
			srv.TLSConfig.ClientCAs = pool
			srv.TLSConfig.ClientAuth = auth
		}
		return nil
	}
}
