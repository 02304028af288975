package wire

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/jackc/pgtype"

	"github.com/latticedb/pgwire/catalog"
	"github.com/latticedb/pgwire/engine"
	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/translate"
	"github.com/latticedb/pgwire/value"
)

// CloseFn is called when a client connection is terminated, either by a
// Terminate message or the connection dropping.
type CloseFn func(ctx context.Context) error

// CancelFn handles a CancelRequest arriving on a fresh connection,
// identifying the target session by the (processID, secretKey) pair the
// original connection was handed in BackendKeyData (§6.6).
type CancelFn func(ctx context.Context, processID, secretKey int32) error

// ListenAndServe opens a new Postgres server backed by a SQLite-native
// engine at enginePath (":memory:" for an ephemeral database) using the
// given options, and starts accepting connections on address. This is the
// one-call path for simple deployments or tests; production servers
// typically call NewServer and Serve directly to control listener setup.
func ListenAndServe(address, enginePath string, options ...OptionFn) error {
	server, err := NewServer(enginePath, options...)
	if err != nil {
		return err
	}

	return server.ListenAndServe(address)
}

// NewServer constructs a new Postgres wire adapter fronting a SQLite-backed
// engine opened at enginePath. The returned Server is ready to Serve once
// constructed; options configure authentication, TLS, and protocol limits.
func NewServer(enginePath string, options ...OptionFn) (*Server, error) {
	cfg := engine.DefaultConfig()
	cfg.Path = enginePath

	eng, err := engine.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire: opening engine: %w", err)
	}

	srv := &Server{
		Engine:              eng,
		Manager:             NewConnManager(eng),
		Catalog:             catalog.New(),
		Translator:          translate.New(),
		logger:              slog.Default(),
		closer:              make(chan struct{}),
		types:               value.NewConnInfo(),
		PortalCacheSize:     100,
		PortalStaleAfter:    10 * time.Minute,
		DefaultTimezone:     "UTC",
		DataRowBatching:     true,
		DataRowBatchSize:    buffer.DefaultDataRowBatchSize,
		sessionsByProcessID: make(map[int32]*Session),
	}
	srv.CancelRequest = srv.cancelSession

	if err := srv.Catalog.Load(context.Background(), eng.DB()); err != nil {
		eng.Close()
		return nil, fmt.Errorf("wire: loading catalog overrides: %w", err)
	}

	for _, option := range options {
		if err := option(srv); err != nil {
			eng.Close()
			return nil, fmt.Errorf("unexpected error while attempting to configure a new server: %w", err)
		}
	}

	return srv, nil
}

// Server adapts the PostgreSQL wire protocol onto an embedded SQLite engine.
// One Server owns exactly one Engine and its Connection Manager; every
// client connection gets its own Session, caches, and (lazily) its own
// engine Conn.
type Server struct {
	closing atomic.Bool
	wg      sync.WaitGroup
	logger  *slog.Logger
	types   *pgtype.ConnInfo

	Engine     *engine.Engine
	Manager    *ConnManager
	Catalog    *catalog.Catalog
	Translator *translate.Translator

	Auth            AuthStrategy
	BufferedMsgSize int
	Parameters      Parameters
	TLSConfig       *tls.Config
	Certificates    []tls.Certificate
	ClientCAs       *x509.CertPool
	ClientAuth      tls.ClientAuthType

	CloseConn     CloseFn
	TerminateConn CloseFn
	CancelRequest CancelFn

	Version          string
	DefaultTimezone  string
	PortalCacheSize  int
	PortalStaleAfter time.Duration

	// DataRowBatching and DataRowBatchSize configure the Protocol Writer's
	// batched DataRow emission (§4.2, §6.4); UseDirectWriter selects the
	// zero-copy backend (buffer.DirectWriter) over the default buffered one.
	DataRowBatching  bool
	DataRowBatchSize int
	UseDirectWriter  bool

	closer chan struct{}

	sessMu              sync.RWMutex
	sessionsByProcessID map[int32]*Session
}

// ListenAndServe opens a new Postgres server on the preconfigured address and
// starts accepting and serving incoming client connections.
func (srv *Server) ListenAndServe(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	return srv.Serve(listener)
}

// Serve accepts and serves incoming Postgres client connections using the
// preconfigured configurations. The given listener will be closed once the
// server is gracefully closed.
func (srv *Server) Serve(listener net.Listener) error {
	defer srv.logger.Info("closing server")

	srv.logger.Info("serving incoming connections", slog.String("addr", listener.Addr().String()))
	srv.wg.Add(1)

	go func() {
		defer srv.wg.Done()
		<-srv.closer

		if err := listener.Close(); err != nil {
			srv.logger.Error("unexpected error while attempting to close the net listener", "err", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}

		if err != nil {
			return err
		}

		go func() {
			ctx := context.Background()
			if err := srv.serve(ctx, conn); err != nil {
				srv.logger.Error("an unexpected error occurred while serving a client connection", "err", err)
			}
		}()
	}
}

// newFrameWriter constructs the Protocol Writer backend for one connection,
// honoring the DataRowBatching/DataRowBatchSize/UseDirectWriter options
// (§4.2, §6.4): dst is wrapped in a buffer.BatchingWriter when batching is
// enabled, then handed to whichever of the two FrameWriter backends was
// selected.
func (srv *Server) newFrameWriter(dst io.Writer) (buffer.FrameWriter, *buffer.BatchingWriter) {
	var batch *buffer.BatchingWriter
	if srv.DataRowBatching {
		size := srv.DataRowBatchSize
		if size < 1 {
			size = buffer.DefaultDataRowBatchSize
		}
		batch = buffer.NewBatchingWriter(dst, size)
		dst = batch
	}

	if srv.UseDirectWriter {
		return buffer.NewDirectWriter(srv.logger, dst), batch
	}
	return buffer.NewWriter(srv.logger, dst), batch
}

func (srv *Server) serve(ctx context.Context, conn net.Conn) error {
	ctx = setTypeInfo(ctx, srv.types)
	defer conn.Close()

	srv.logger.Debug("serving a new client connection")

	conn, version, reader, err := srv.Handshake(conn)
	if err != nil {
		return err
	}

	if version == types.VersionCancel {
		return conn.Close()
	}

	srv.logger.Debug("handshake successful, validating authentication")

	writer, batch := srv.newFrameWriter(conn)
	if batch != nil {
		defer batch.Flush()
	}
	ctx, err = srv.readClientParameters(ctx, reader)
	if err != nil {
		return err
	}

	if err := srv.handleAuth(ctx, reader, writer); err != nil {
		return err
	}

	srv.logger.Debug("connection authenticated, writing server parameters")

	ctx, err = srv.writeParameters(ctx, writer, srv.Parameters)
	if err != nil {
		return err
	}

	params := ClientParameters(ctx)
	session := NewSession(srv.Manager, params[ParamDatabase], params[ParamUsername], srv.DefaultTimezone, srv.PortalCacheSize, srv.PortalStaleAfter)
	srv.registerSession(session)
	defer srv.unregisterSession(session)
	defer session.Close()

	ctx = setSession(ctx, session)

	if srv.CloseConn != nil {
		defer func() {
			if err := srv.CloseConn(ctx); err != nil {
				srv.logger.Error("unexpected error while closing the client connection", "err", err)
			}
		}()
	}

	if err := writeBackendKeyData(writer, session.ProcessID, session.SecretKey); err != nil {
		return err
	}

	return srv.consumeCommands(ctx, conn, reader, writer)
}

// registerSession makes session reachable by its ProcessID for a
// CancelRequest arriving on another connection (§6.6).
func (srv *Server) registerSession(session *Session) {
	srv.sessMu.Lock()
	defer srv.sessMu.Unlock()
	srv.sessionsByProcessID[session.ProcessID] = session
}

func (srv *Server) unregisterSession(session *Session) {
	srv.sessMu.Lock()
	defer srv.sessMu.Unlock()
	delete(srv.sessionsByProcessID, session.ProcessID)
}

// cancelSession is the default CancelRequest implementation: it looks up
// the targeted session by processID, validates the secretKey the original
// connection was handed (preventing an unrelated client from cancelling
// another session's query), and interrupts its in-flight statement.
func (srv *Server) cancelSession(ctx context.Context, processID, secretKey int32) error {
	srv.sessMu.RLock()
	session, ok := srv.sessionsByProcessID[processID]
	srv.sessMu.RUnlock()

	if !ok || session.SecretKey != secretKey {
		return nil
	}

	session.Cancel()
	return nil
}

// Close gracefully closes the underlying Postgres server and its engine.
func (srv *Server) Close() error {
	if srv.closing.Load() {
		return nil
	}

	srv.closing.Store(true)
	close(srv.closer)
	srv.wg.Wait()

	if srv.Engine != nil {
		return srv.Engine.Close()
	}
	return nil
}
