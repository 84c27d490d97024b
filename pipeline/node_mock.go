package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Mock for ChainableNodeInterface
type NodeInterfaceMock struct {
	mock.Mock
}

// Factory
func NewNodeInterfaceMock() *NodeInterfaceMock {
	return &NodeInterfaceMock{
		Mock: mock.Mock{},
	}
}

// Name returns the configured name.
func (mock *NodeInterfaceMock) Name() string {
	args := mock.Called()
	return args.String(0)
}

// # Description
//
// Init brings the node up against the provided destination.
//
// # Returns
//
// nil on success, a *NodeError otherwise.
func (mock *NodeInterfaceMock) Init(ctx context.Context, dst Destination) error {
	args := mock.Called(ctx, dst)
	return args.Error(0)
}

// # Description
//
// Read fills out with newly available bytes. Use Run to fill the buffer.
//
// # Returns
//
// nil on success, a *NodeError otherwise.
func (mock *NodeInterfaceMock) Read(out *Buffer, nargs *NodeArgs) error {
	args := mock.Called(out, nargs)
	return args.Error(0)
}

// # Description
//
// Write consumes bytes from in. Use Run to consume the buffer.
//
// # Returns
//
// nil on success, a *NodeError otherwise.
func (mock *NodeInterfaceMock) Write(in *Buffer, out *Buffer) error {
	args := mock.Called(in, out)
	return args.Error(0)
}

// Close the node.
func (mock *NodeInterfaceMock) Close() {
	mock.Called()
}

// Chain sets the next node.
func (mock *NodeInterfaceMock) Chain(next NodeInterface) {
	mock.Called(next)
}

// Next returns the next node.
func (mock *NodeInterfaceMock) Next() NodeInterface {
	args := mock.Called()
	next, _ := args.Get(0).(NodeInterface)
	return next
}
