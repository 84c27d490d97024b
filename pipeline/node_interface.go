// Package pipeline defines the contract shared by all the layers (nodes) of a transport chain,
// the bounded buffers used to move bytes between adjacent layers and the error and argument
// passing primitives used by every node operation.
package pipeline

import "context"

// Interface which describes the methods and behaviour every layer of a transport chain
// implements: raw socket, TLS stream, websocket framing, ...
//
// Nodes are NOT thread-safe. Calls on a node (and on the chain it belongs to) must be
// serialized by the caller.
type NodeInterface interface {
	// # Description
	//
	// Name returns a short name which identifies the node type in errors and logs.
	Name() string
	// # Description
	//
	// Init brings the node up against the provided destination.
	//
	// # Expected behaviour
	//
	//	- Init MUST block until the node is ready or has failed.
	//
	//	- Pass-through nodes MUST init their next node first (bottom-up), then perform their own
	//	  setup (handshake, ...).
	//
	//	- Init MUST return a *NodeError identifying the failing layer. Errors of lower layers
	//	  MUST be returned unchanged.
	//
	// # Inputs
	//
	//	- ctx: Context used for timeout purpose. Its deadline bounds connect and handshake.
	//	- dst: Destination descriptor.
	//
	// # Returns
	//
	// nil on success, a *NodeError otherwise.
	Init(ctx context.Context, dst Destination) error
	// # Description
	//
	// Read fills the free space of out with newly available bytes.
	//
	// # Expected behaviour
	//
	//	- Read MUST block until at least one byte is available, the remote peer closed the
	//	  connection, a timeout occurs or the node fails.
	//
	//	- Read MUST NOT write past out free space and MUST NOT retain out after it returns.
	//
	//	- Read MUST NOT return nil without appending at least one byte to out when out has free
	//	  space, unless the node delivers messages and the message is empty (websocket frame
	//	  without payload). Callers report such a call with a NoProgress error wrapping
	//	  ErrNoProgress.
	//
	//	- Timeouts MUST be reported with a *NodeError wrapping ErrTimeout and MUST leave the node
	//	  usable so that a later Read resumes.
	//
	// # Inputs
	//
	//	- out: Buffer to fill.
	//	- args: Optional side parameters. Can be nil.
	//
	// # Returns
	//
	// nil on success, a *NodeError otherwise.
	Read(out *Buffer, args *NodeArgs) error
	// # Description
	//
	// Write consumes bytes from in and forwards them towards the wire.
	//
	// # Expected behaviour
	//
	//	- Write MAY consume only part of in. Callers loop until in is empty.
	//
	//	- Write MUST NOT return nil without consuming at least one byte of a non-empty in.
	//	  Callers report such a call with a NoProgress error wrapping ErrNoProgress.
	//
	//	- out is an optional scratch buffer the node can use for transformed bytes. Can be nil.
	//
	// # Returns
	//
	// nil on success, a *NodeError otherwise.
	Write(in *Buffer, out *Buffer) error
	// # Description
	//
	// Close releases the node resources. Close is best-effort, idempotent and safe to call on a
	// node which has never been initialized. Pass-through nodes close themselves and then their
	// next node.
	Close()
}

// Interface implemented by pass-through nodes which delegate raw I/O to a lower node.
type ChainableNodeInterface interface {
	NodeInterface
	// Chain sets the node beneath this one, closer to the wire. Must be called before Init.
	Chain(next NodeInterface)
	// Next returns the node beneath this one or nil.
	Next() NodeInterface
}

// # Description
//
// Helper used by nodes to forward a buffer to a lower node until the lower node has consumed
// all of it.
//
// # Returns
//
// nil once in is empty, the lower node error otherwise. A NoProgress error of next is returned
// if a Write call of next returns nil without consuming any byte.
func WriteAll(next NodeInterface, in *Buffer, out *Buffer) error {
	for !in.Empty() {
		before := in.Size()
		if err := next.Write(in, out); err != nil {
			return err
		}
		if in.Size() == before {
			return NewNoProgressError(next, "write")
		}
	}
	return nil
}
