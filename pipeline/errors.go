package pipeline

import (
	"errors"
	"fmt"
)

/*************************************************************************************************/
/* SENTINEL ERRORS                                                                               */
/*************************************************************************************************/

var (
	// Wrapped by node errors which report a read timeout. A timeout is transient: the call can
	// be retried and any partially assembled state is kept.
	ErrTimeout = errors.New("pipeline: operation timeout")
	// Wrapped by node errors which report the remote peer closed the connection.
	ErrRemoteClosed = errors.New("pipeline: remote closed")
	// Wrapped by node errors which report a node is used before Init or after Close.
	ErrNotReady = errors.New("pipeline: node not ready")
	// Wrapped by node errors which report a node returned nil from Read or Write without
	// producing or consuming any byte.
	ErrNoProgress = errors.New("pipeline: node made no progress")
)

// Error code shared by all node types. Reported on behalf of a node which broke the Read or
// Write contract by returning nil without progress. Node specific codes never use it.
const NoProgress int32 = -1

/*************************************************************************************************/
/* NODE ERROR                                                                                    */
/*************************************************************************************************/

// Error reported by a node of a chain.
//
// Code is only meaningful together with Node: each node type reserves its own negative code
// range. Layers pass errors of lower layers upward unchanged, so Node always identifies the
// layer which actually failed.
type NodeError struct {
	// Node which failed
	Node NodeInterface
	// Node specific error code
	Code int32
	// Human readable description
	Desc string
	// Embedded error if any: root cause or one of the pipeline sentinel errors.
	Err error
}

// # Description
//
// Factory which creates a new NodeError.
//
// # Inputs
//
//   - node: Node which failed. Must not be nil.
//   - code: Node specific error code.
//   - desc: Human readable description.
//   - err: Optional embedded error. Can be nil.
//
// # Returns
//
// A new NodeError
func NewNodeError(node NodeInterface, code int32, desc string, err error) *NodeError {
	return &NodeError{
		Node: node,
		Code: code,
		Desc: desc,
		Err:  err,
	}
}

func (err *NodeError) Error() string {
	name := nodeName(err.Node)
	if err.Err != nil {
		return fmt.Sprintf("node %s failed (%d): %s: %v", name, err.Code, err.Desc, err.Err)
	}
	return fmt.Sprintf("node %s failed (%d): %s", name, err.Code, err.Desc)
}

// Name of node or "<nil>" if node is nil
func nodeName(node NodeInterface) string {
	if node == nil {
		return "<nil>"
	}
	return node.Name()
}

func (err *NodeError) Unwrap() error {
	return err.Err
}

// Timeout reports whether the error is a read timeout. It makes NodeError a net.Error.
func (err *NodeError) Timeout() bool {
	return errors.Is(err.Err, ErrTimeout)
}

// Temporary reports whether the failed call can be retried. Only timeouts are temporary.
//
// crypto/tls relies on it to keep a connection usable after a read timeout of the underlying
// connection.
func (err *NodeError) Temporary() bool {
	return err.Timeout()
}

// # Description
//
// Helper which extracts the NodeError from an error chain.
//
// # Returns
//
// The NodeError and true if err is or wraps a NodeError, nil and false otherwise.
func AsNodeError(err error) (*NodeError, bool) {
	var nerr *NodeError
	if errors.As(err, &nerr) {
		return nerr, true
	}
	return nil, false
}

// # Description
//
// Create the error reported on behalf of node when one of its Read or Write calls returned nil
// without producing or consuming any byte.
//
// # Returns
//
// A NodeError of node with the NoProgress code which wraps ErrNoProgress.
func NewNoProgressError(node NodeInterface, op string) *NodeError {
	return NewNodeError(node, NoProgress, op+" returned without progress", ErrNoProgress)
}

// Returned by NewNodeInstrumentationDecorator when the decorated node is nil.
var errNilDecorated = errors.New("pipeline: decorated node must not be nil")
