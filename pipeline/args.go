package pipeline

import (
	"context"
	"time"

	"github.com/gbdevw/gowsnode/wsframe"
)

// Optional per-call side parameters passed through the layers of a chain.
//
// A nil NodeArgs or a nil field means the parameter is not provided. Layers which do not use a
// parameter forward the NodeArgs as is to the next layer.
type NodeArgs struct {
	// Input: read timeout to use for this call. A zero duration disables the deadline. When nil,
	// the node default read timeout applies.
	Timeout *time.Duration
	// Output: flags (opcode | fin) of the frame read by the websocket node.
	Flags *wsframe.Flags
}

// WithTimeout returns NodeArgs which carry the provided read timeout.
func WithTimeout(timeout time.Duration) *NodeArgs {
	return &NodeArgs{Timeout: &timeout}
}

// WithFlags returns NodeArgs which will receive the flags of the read frame in flags.
func WithFlags(flags *wsframe.Flags) *NodeArgs {
	return &NodeArgs{Flags: flags}
}

// # Description
//
// Build NodeArgs whose timeout is derived from the context deadline, if any.
//
// # Returns
//
// NodeArgs with a timeout if ctx has a deadline, nil otherwise. If the deadline is already
// exceeded, a 1ns timeout is used so the read fails immediately with a timeout.
func ArgsFromContext(ctx context.Context) *NodeArgs {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		timeout = time.Nanosecond
	}
	return WithTimeout(timeout)
}

// GetTimeout returns the timeout and true if args carries one.
func (args *NodeArgs) GetTimeout() (time.Duration, bool) {
	if args == nil || args.Timeout == nil {
		return 0, false
	}
	return *args.Timeout, true
}

// SetFlags writes flags in the output slot if the caller provided one.
func (args *NodeArgs) SetFlags(flags wsframe.Flags) {
	if args != nil && args.Flags != nil {
		*args.Flags = flags
	}
}
