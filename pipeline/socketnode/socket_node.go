// Package socketnode provides the terminal node of a chain: a raw TCP stream socket.
package socketnode

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gbdevw/gowsnode/pipeline"
	"go.uber.org/zap"
)

// Error codes reported by the socket node.
const (
	NotReady           int32 = -10000
	RemoteClosed       int32 = -10001
	InsufficientBuffer int32 = -10002
	ConnectFailed      int32 = -10003
	WriteFailed        int32 = -10004
	ReadFailed         int32 = -10005
	ReadTimeout        int32 = -10006
)

// Name of the socket node
const nodeName = "socket"

// Terminal node which reads from and writes to a TCP connection.
type SocketNode struct {
	// Node options
	opts *SocketNodeOptions
	// Logger
	logger *zap.Logger
	// Underlying connection. Nil when the node is not initialized.
	conn net.Conn
}

// # Description
//
// Factory which creates a new, not initialized SocketNode.
//
// # Inputs
//
//   - opts: Node options. Default options are used if nil.
//
// # Returns
//
// The new node or an error if options are invalid.
func NewSocketNode(opts *SocketNodeOptions) (*SocketNode, error) {
	if opts == nil {
		opts = NewSocketNodeOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SocketNode{
		opts:   opts,
		logger: logger.With(zap.String("node", nodeName)),
	}, nil
}

func (node *SocketNode) Name() string {
	return nodeName
}

// # Description
//
// Dial the destination. A previously opened connection is closed first.
//
// # Returns
//
// nil on success, a CONNECT_FAILED node error otherwise.
func (node *SocketNode) Init(ctx context.Context, dst pipeline.Destination) error {
	// Close previous connection if any
	node.Close()
	// Dial
	dialer := &net.Dialer{Timeout: node.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dst.Address())
	if err != nil {
		node.logger.Debug("connection failed", zap.String("address", dst.Address()), zap.Error(err))
		return pipeline.NewNodeError(node, ConnectFailed, "failed to connect to "+dst.Address(), err)
	}
	node.conn = conn
	node.logger.Info("connected",
		zap.String("address", dst.Address()),
		zap.String("local", conn.LocalAddr().String()))
	return nil
}

// # Description
//
// Read available bytes from the connection into the free space of out. The read deadline is
// set from args timeout or from the default read timeout.
//
// Bytes received before an error are returned with a nil error: the error is reported by the
// next call.
//
// # Returns
//
//   - NOT_READY if the node is not initialized.
//   - INSUFFICIENT_BUFFER if out has no free space.
//   - READ_TIMEOUT (wraps pipeline.ErrTimeout) if no byte arrived before the deadline.
//   - REMOTE_CLOSED (wraps pipeline.ErrRemoteClosed) if the peer closed the connection.
//   - READ_FAILED otherwise.
func (node *SocketNode) Read(out *pipeline.Buffer, args *pipeline.NodeArgs) error {
	if node.conn == nil {
		return pipeline.NewNodeError(node, NotReady, "socket is not connected", pipeline.ErrNotReady)
	}
	if out.Full() {
		return pipeline.NewNodeError(node, InsufficientBuffer, "read buffer has no free space", nil)
	}
	// Set read deadline
	timeout, ok := args.GetTimeout()
	if !ok {
		timeout = node.opts.ReadTimeout
	}
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := node.conn.SetReadDeadline(deadline); err != nil {
		return pipeline.NewNodeError(node, ReadFailed, "failed to set read deadline", err)
	}
	// Read
	n, err := node.conn.Read(out.Free())
	out.Obtain(n)
	if err == nil || n > 0 {
		return nil
	}
	if errors.Is(err, io.EOF) {
		node.logger.Debug("remote closed the connection")
		return pipeline.NewNodeError(node, RemoteClosed, "remote closed the connection", pipeline.ErrRemoteClosed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipeline.NewNodeError(node, ReadTimeout, "read timeout", pipeline.ErrTimeout)
	}
	return pipeline.NewNodeError(node, ReadFailed, "read failed", err)
}

// # Description
//
// Write the bytes of in to the connection and consume the written bytes. out is not used.
//
// # Returns
//
// NOT_READY if the node is not initialized, WRITE_FAILED if the connection write failed.
func (node *SocketNode) Write(in *pipeline.Buffer, out *pipeline.Buffer) error {
	if node.conn == nil {
		return pipeline.NewNodeError(node, NotReady, "socket is not connected", pipeline.ErrNotReady)
	}
	n, err := node.conn.Write(in.Bytes())
	in.Consume(n)
	if err != nil {
		return pipeline.NewNodeError(node, WriteFailed, "write failed", err)
	}
	return nil
}

// Close the connection if any.
func (node *SocketNode) Close() {
	if node.conn == nil {
		return
	}
	if err := node.conn.Close(); err != nil {
		node.logger.Debug("failed to close connection", zap.Error(err))
	}
	node.conn = nil
	node.logger.Info("connection closed")
}
