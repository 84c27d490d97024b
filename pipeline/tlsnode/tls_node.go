// Package tlsnode provides a pass-through node which secures the byte stream of its next node
// with TLS.
package tlsnode

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"

	"github.com/gbdevw/gowsnode/pipeline"
	"go.uber.org/zap"
)

// Error codes reported by the TLS node.
const (
	InitFailed             int32 = -20000
	HandshakeFailed        int32 = -20001
	WriteFailed            int32 = -20002
	ReadFailed             int32 = -20003
	NotReady               int32 = -20004
	InsufficientReadBuffer int32 = -20005
	RemoteClosed           int32 = -20006
	ReadTimeout            int32 = -20007
)

// Name of the TLS node
const nodeName = "tls"

// Pass-through node which runs a TLS client session over its next node.
//
// The next node is adapted as a net.Conn so that crypto/tls can drive it: errors of the next
// node are returned unchanged and a read timeout of the next node does not break the session.
type TLSNode struct {
	// Node options
	opts *TLSNodeOptions
	// Logger
	logger *zap.Logger
	// Next node
	next pipeline.NodeInterface
	// Next node adapted as a net.Conn
	conn *pipeline.Conn
	// TLS session. Nil when the node is not initialized.
	session *tls.Conn
}

// # Description
//
// Factory which creates a new, not chained and not initialized TLSNode.
//
// # Inputs
//
//   - opts: Node options. Default options are used if nil.
//
// # Returns
//
// The new node or an error if options are invalid.
func NewTLSNode(opts *TLSNodeOptions) (*TLSNode, error) {
	if opts == nil {
		opts = NewTLSNodeOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TLSNode{
		opts:   opts,
		logger: logger.With(zap.String("node", nodeName)),
	}, nil
}

func (node *TLSNode) Name() string {
	return nodeName
}

// Chain sets the node the TLS records are read from and written to.
func (node *TLSNode) Chain(next pipeline.NodeInterface) {
	node.next = next
}

func (node *TLSNode) Next() pipeline.NodeInterface {
	return node.next
}

// # Description
//
// Init the next node, then perform the TLS handshake over it. The context deadline, if any, is
// used as read timeout during the handshake.
//
// # Returns
//
//   - NOT_READY if the node is not chained.
//   - The next node error, unchanged, if the next node fails.
//   - HANDSHAKE_FAILED if the TLS handshake fails.
func (node *TLSNode) Init(ctx context.Context, dst pipeline.Destination) error {
	if node.next == nil {
		return pipeline.NewNodeError(node, NotReady, "tls node is not chained", pipeline.ErrNotReady)
	}
	// Drop previous session if any
	node.session = nil
	// Init next node first
	if err := node.next.Init(ctx, dst); err != nil {
		return err
	}
	// Build client configuration
	cfg := node.opts.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = dst.Host
	}
	node.conn = pipeline.NewConn(node.next)
	node.conn.SetArgs(pipeline.ArgsFromContext(ctx))
	session := tls.Client(node.conn, cfg)
	// Handshake
	if err := session.Handshake(); err != nil {
		node.logger.Debug("tls handshake failed", zap.String("server_name", cfg.ServerName), zap.Error(err))
		if nerr, ok := pipeline.AsNodeError(err); ok {
			return nerr
		}
		return pipeline.NewNodeError(node, HandshakeFailed, "tls handshake failed", err)
	}
	node.conn.SetArgs(nil)
	node.session = session
	state := session.ConnectionState()
	node.logger.Info("tls session established",
		zap.String("server_name", cfg.ServerName),
		zap.String("version", tls.VersionName(state.Version)),
		zap.String("cipher_suite", tls.CipherSuiteName(state.CipherSuite)))
	return nil
}

// # Description
//
// Read decrypted bytes into the free space of out. args are forwarded to the next node.
//
// # Returns
//
//   - NOT_READY if the node is not initialized.
//   - INSUFFICIENT_READ_BUFFER if out has no free space.
//   - The next node error, unchanged (timeouts included).
//   - REMOTE_CLOSED if the peer closed the TLS session.
//   - READ_FAILED otherwise.
func (node *TLSNode) Read(out *pipeline.Buffer, args *pipeline.NodeArgs) error {
	if node.session == nil {
		return pipeline.NewNodeError(node, NotReady, "tls session is not established", pipeline.ErrNotReady)
	}
	if out.Full() {
		return pipeline.NewNodeError(node, InsufficientReadBuffer, "read buffer has no free space", nil)
	}
	node.conn.SetArgs(args)
	n, err := node.session.Read(out.Free())
	out.Obtain(n)
	if err == nil || n > 0 {
		return nil
	}
	if nerr, ok := pipeline.AsNodeError(err); ok {
		return nerr
	}
	if errors.Is(err, io.EOF) {
		return pipeline.NewNodeError(node, RemoteClosed, "remote closed the tls session", pipeline.ErrRemoteClosed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipeline.NewNodeError(node, ReadTimeout, "tls read timeout", pipeline.ErrTimeout)
	}
	return pipeline.NewNodeError(node, ReadFailed, "tls read failed", err)
}

// # Description
//
// Encrypt all bytes of in and write the records to the next node. out is not used.
//
// # Returns
//
// NOT_READY if the node is not initialized, the next node error unchanged or WRITE_FAILED.
func (node *TLSNode) Write(in *pipeline.Buffer, out *pipeline.Buffer) error {
	if node.session == nil {
		return pipeline.NewNodeError(node, NotReady, "tls session is not established", pipeline.ErrNotReady)
	}
	n, err := node.session.Write(in.Bytes())
	in.Consume(n)
	if err != nil {
		if nerr, ok := pipeline.AsNodeError(err); ok {
			return nerr
		}
		return pipeline.NewNodeError(node, WriteFailed, "tls write failed", err)
	}
	return nil
}

// Close the TLS session (a close_notify alert is sent when the session is established) and
// the next node.
func (node *TLSNode) Close() {
	if node.session != nil {
		if err := node.session.Close(); err != nil {
			node.logger.Debug("failed to close tls session", zap.Error(err))
		}
		node.session = nil
		node.logger.Info("tls session closed")
	}
	if node.next != nil {
		node.next.Close()
	}
}
