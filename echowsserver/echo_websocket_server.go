// Package echowsserver contains a simple websocket echo server used as a peer by the
// integration tests and by the example server.
package echowsserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Structure for the websocket server
type EchoWebsocketServer struct {
	// Underlying http.Server
	httpServer *http.Server
	// Websocket upgrader
	upgrader websocket.Upgrader
	// Indicates that server has started
	started bool
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server sessions
	cancelServerCtx context.CancelFunc
	// Address the server listens on once started
	addr net.Addr
	// Internal mutex used to coordinate start/stop
	startMu *sync.Mutex
	// Logger
	logger *zap.Logger
}

// # Description
//
// Factory which creates a new, non-started EchoWebsocketServer.
//
// The server is also a http.Handler: it can be mounted on any HTTP server (httptest servers
// included) without calling Start.
//
// # Inputs
//
//   - httpServer: The underlying HTTP Server to use. The provided HTTP Server handler will be
//     overriden with this server handler. If nil is provided, a default HTTP server listening
//     on localhost:8080 will be used.
//
//   - logger: Logger to use. If nil, a Nop logger is used.
//
// # Returns
//
// A new, non-started EchoWebsocketServer.
func NewEchoWebsocketServer(httpServer *http.Server, logger *zap.Logger) *EchoWebsocketServer {
	if httpServer == nil {
		// Default HTTP server
		httpServer = &http.Server{Addr: "localhost:8080", BaseContext: func(l net.Listener) context.Context { return context.Background() }}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Build server with initial state
	wssrv := &EchoWebsocketServer{
		httpServer: httpServer,
		upgrader:   websocket.Upgrader{},
		started:    false,
		startMu:    &sync.Mutex{},
		logger:     logger,
	}
	wssrv.serverCtx, wssrv.cancelServerCtx = context.WithCancel(context.Background())
	// Register server as handler of the underlying http server
	httpServer.Handler = wssrv
	// Return server
	return wssrv
}

// # Description
//
// Start the websocket server that will accept incoming websocket connections.
//
// # Returns
//
// An error if the server is already started or if it cannot listen on its address.
func (srv *EchoWebsocketServer) Start() error {
	// Lock start mutex
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started {
		// Server is already started -> error
		return fmt.Errorf("server already started")
	}
	// Listen now so that listen errors are reported to the caller
	listener, err := net.Listen("tcp", srv.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.httpServer.Addr, err)
	}
	// Renew server context if the server has been stopped before
	if srv.serverCtx.Err() != nil {
		srv.serverCtx, srv.cancelServerCtx = context.WithCancel(context.Background())
	}
	// Start the server
	srv.started = true
	srv.addr = listener.Addr()
	go func() {
		if err := srv.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("echo server failed", zap.Error(err))
		}
	}()
	srv.logger.Info("echo server started", zap.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the address the server listens on, or nil if the server is not started.
func (srv *EchoWebsocketServer) Addr() net.Addr {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return nil
	}
	return srv.addr
}

// # Description
//
// Stop the websocket server and close all client sessions.
//
// # Returns
//
// Nil in case of success, an error otherwise.
func (srv *EchoWebsocketServer) Stop() error {
	// Lock start mutex
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	// Check started flag
	if !srv.started {
		return fmt.Errorf("server not started")
	}
	srv.started = false
	// Cancel server context to shutdown all goroutines
	srv.cancelServerCtx()
	srv.logger.Info("echo server stopped")
	// Close server
	return srv.httpServer.Close()
}

// # Description
//
// Server handler which accepts incoming websocket connections.
func (srv *EchoWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Accept incoming client connection
	c, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("an error occured while accepting client connection", zap.Error(err))
		return
	}
	session := uuid.New()
	srv.logger.Info("new client connection", zap.String("session", session.String()))
	// Start goroutines which will handle new client
	go srv.closeWatchdog(srv.serverCtx, c)
	go srv.runClientSession(session, c)
}

// Manages the client session and handle echo feature until the connection is closed.
//
// Ping frames are answered with pong frames and close frames are echoed by the upgrader default
// handlers.
func (srv *EchoWebsocketServer) runClientSession(session uuid.UUID, conn *websocket.Conn) {
	logger := srv.logger.With(zap.String("session", session.String()))
	defer conn.Close()
	for {
		// Read message
		mt, message, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				logger.Info("connection closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				logger.Info("connection closed", zap.Error(err))
			default:
				logger.Warn("read error", zap.Error(err))
			}
			return
		}
		logger.Debug("message received", zap.Int("type", mt), zap.Int("size", len(message)))
		// Echo
		if err := conn.WriteMessage(mt, message); err != nil {
			logger.Warn("write error", zap.Error(err))
			return
		}
	}
}

// This function waits for a cancelation signal on provided context Done channel
// and close the provided websocket connection
func (srv *EchoWebsocketServer) closeWatchdog(ctx context.Context, conn *websocket.Conn) {
	// Wait for context to be canceled
	<-ctx.Done()
	// Close connection
	conn.Close()
}
