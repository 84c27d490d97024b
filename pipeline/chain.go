package pipeline

import (
	"context"
	"fmt"
)

// Ordered sequence of nodes, top first, where each node delegates raw I/O to the next one.
//
// The chain owns its layers: layers are wired when the chain is built and the chain keeps the
// error returned by the last failing call.
type Chain struct {
	// Layers, top (application side) first
	layers []NodeInterface
	// Error returned by the last failing call. Stale after a successful call.
	lastErr error
}

// # Description
//
// Factory which wires the provided layers together and returns the chain which owns them.
//
// # Inputs
//
//   - layers: Nodes ordered from the top (application side) to the bottom (wire side). All nodes
//     but the last one must implement ChainableNodeInterface. Decorators of all nodes but the
//     last one must decorate a ChainableNodeInterface.
//
// # Returns
//
// The chain or an error if layers is empty, contains nil, contains the same node twice or
// contains a non-chainable node (or a decorator of a non-chainable node) which is not the last
// one.
func NewChain(layers ...NodeInterface) (*Chain, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("a chain needs at least one node")
	}
	// Check nodes
	seen := make(map[NodeInterface]bool, len(layers))
	for i, layer := range layers {
		if layer == nil {
			return nil, fmt.Errorf("chain layer %d is nil", i)
		}
		if seen[layer] {
			return nil, fmt.Errorf("chain layer %d (%s) appears twice", i, layer.Name())
		}
		seen[layer] = true
		if i < len(layers)-1 {
			if !canChain(layer) {
				return nil, fmt.Errorf("chain layer %d (%s) cannot be chained to a lower node", i, layer.Name())
			}
		}
	}
	// Wire layers
	for i := 0; i < len(layers)-1; i++ {
		layers[i].(ChainableNodeInterface).Chain(layers[i+1])
	}
	return &Chain{layers: layers}, nil
}

// Check layer can be chained to a lower node. Decorators are unwrapped: a decorator can only be
// chained if the node it decorates can.
func canChain(layer NodeInterface) bool {
	for {
		if _, ok := layer.(ChainableNodeInterface); !ok {
			return false
		}
		decorator, ok := layer.(interface{ Decorated() NodeInterface })
		if !ok {
			return true
		}
		layer = decorator.Decorated()
	}
}

// Top returns the top layer.
func (chain *Chain) Top() NodeInterface {
	return chain.layers[0]
}

// Layers returns a copy of the chain layers, top first.
func (chain *Chain) Layers() []NodeInterface {
	return append([]NodeInterface(nil), chain.layers...)
}

// Init initializes the chain by calling Init on the top layer, which initializes the lower
// layers first.
func (chain *Chain) Init(ctx context.Context, dst Destination) error {
	return chain.record(chain.Top().Init(ctx, dst))
}

// Read reads from the top layer.
func (chain *Chain) Read(out *Buffer, args *NodeArgs) error {
	return chain.record(chain.Top().Read(out, args))
}

// Write writes to the top layer.
func (chain *Chain) Write(in *Buffer, out *Buffer) error {
	return chain.record(chain.Top().Write(in, out))
}

// Close closes the top layer which closes the lower layers. Close is idempotent.
func (chain *Chain) Close() {
	chain.Top().Close()
}

// # Description
//
// Return the error of the last failing call made through the chain, or the error explicitly
// recorded with Record. The value is stale after a successful call.
//
// # Returns
//
// The last error or nil if no call failed yet.
func (chain *Chain) LastError() error {
	return chain.lastErr
}

// LastNodeError returns the last error as a NodeError if it is one.
func (chain *Chain) LastNodeError() (*NodeError, bool) {
	return AsNodeError(chain.lastErr)
}

// Record stores err as the last chain error if it is not nil and returns it. It is used to
// report errors of calls made on the top node directly (SendFrame, Ping, ...).
func (chain *Chain) Record(err error) error {
	return chain.record(err)
}

func (chain *Chain) record(err error) error {
	if err != nil {
		chain.lastErr = err
	}
	return err
}
