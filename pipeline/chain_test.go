package pipeline

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for Chain, Conn and node mock unit tests
type ChainUnitTestSuite struct {
	suite.Suite
}

// Run ChainUnitTestSuite test suite
func TestChainUnitTestSuite(t *testing.T) {
	suite.Run(t, new(ChainUnitTestSuite))
}

// Node which cannot be chained to a lower node
type terminalNode struct {
	NodeInterface
}

/*************************************************************************************************/
/* UNIT TESTS - MOCK                                                                             */
/*************************************************************************************************/

// Test the mock complies with ChainableNodeInterface
func (suite *ChainUnitTestSuite) TestMockInterfaceCompliance() {
	var instance any = NewNodeInterfaceMock()
	_, ok := instance.(ChainableNodeInterface)
	require.True(suite.T(), ok)
}

/*************************************************************************************************/
/* UNIT TESTS - CHAIN                                                                            */
/*************************************************************************************************/

// Test NewChain wires the layers top to bottom
func (suite *ChainUnitTestSuite) TestNewChain() {
	top := NewNodeInterfaceMock()
	middle := NewNodeInterfaceMock()
	bottom := terminalNode{NewNodeInterfaceMock()}
	top.On("Chain", middle).Return()
	middle.On("Chain", bottom).Return()
	// Build chain
	chain, err := NewChain(top, middle, bottom)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), chain)
	require.Same(suite.T(), top, chain.Top())
	require.Equal(suite.T(), []NodeInterface{top, middle, bottom}, chain.Layers())
	top.AssertExpectations(suite.T())
	middle.AssertExpectations(suite.T())
	// Layers returns a copy
	layers := chain.Layers()
	layers[0] = nil
	require.Same(suite.T(), top, chain.Top())
}

// Test NewChain rejects invalid layers
func (suite *ChainUnitTestSuite) TestNewChainErrors() {
	// Empty chain
	_, err := NewChain()
	require.Error(suite.T(), err)
	// Nil layer
	_, err = NewChain(NewNodeInterfaceMock(), nil)
	require.Error(suite.T(), err)
	// Same node twice
	node := NewNodeInterfaceMock()
	node.On("Name").Return("node")
	_, err = NewChain(node, NewNodeInterfaceMock(), node)
	require.Error(suite.T(), err)
	// Non-chainable intermediate layer
	terminal := NewNodeInterfaceMock()
	terminal.On("Name").Return("terminal")
	_, err = NewChain(terminalNode{terminal}, NewNodeInterfaceMock())
	require.Error(suite.T(), err)
	// Decorated non-chainable intermediate layer
	decorated, err := NewNodeInstrumentationDecorator(terminalNode{terminal}, nil, nil)
	require.NoError(suite.T(), err)
	_, err = NewChain(decorated, NewNodeInterfaceMock())
	require.Error(suite.T(), err)
	terminal.AssertNotCalled(suite.T(), "Chain", mock.Anything)
	// Decorated non-chainable last layer is valid
	top := NewNodeInterfaceMock()
	top.On("Chain", decorated).Return().Once()
	_, err = NewChain(top, decorated)
	require.NoError(suite.T(), err)
	top.AssertExpectations(suite.T())
	// Nothing has been wired
	node.AssertNotCalled(suite.T(), "Chain", mock.Anything)
}

// Test calls are forwarded to the top layer and the last error is recorded
func (suite *ChainUnitTestSuite) TestCallsAndLastError() {
	top := NewNodeInterfaceMock()
	top.On("Name").Return("top").Maybe()
	chain, err := NewChain(top)
	require.NoError(suite.T(), err)
	require.Nil(suite.T(), chain.LastError())
	// Init fails
	dst := Destination{Scheme: SchemeWS, Host: "localhost", Port: 8080, Path: "/"}
	initErr := NewNodeError(top, -1, "init failed", nil)
	top.On("Init", mock.Anything, dst).Return(initErr).Once()
	require.Same(suite.T(), initErr, chain.Init(context.Background(), dst))
	require.Same(suite.T(), initErr, chain.LastError())
	// Successful write leaves the last error stale
	in := NewBuffer(make([]byte, 4))
	top.On("Write", in, (*Buffer)(nil)).Return(nil).Once()
	require.NoError(suite.T(), chain.Write(in, nil))
	require.Same(suite.T(), initErr, chain.LastError())
	// Read fails with a timeout
	out := NewBuffer(make([]byte, 4))
	readErr := NewNodeError(top, -2, "timeout", ErrTimeout)
	top.On("Read", out, (*NodeArgs)(nil)).Return(readErr).Once()
	require.Same(suite.T(), readErr, chain.Read(out, nil))
	nerr, ok := chain.LastNodeError()
	require.True(suite.T(), ok)
	require.Same(suite.T(), readErr, nerr)
	// Record
	recorded := NewNodeError(top, -3, "send failed", nil)
	require.Same(suite.T(), recorded, chain.Record(recorded))
	require.Same(suite.T(), recorded, chain.LastError())
	require.NoError(suite.T(), chain.Record(nil))
	require.Same(suite.T(), recorded, chain.LastError())
	// Close
	top.On("Close").Return().Once()
	chain.Close()
	top.AssertExpectations(suite.T())
}

/*************************************************************************************************/
/* UNIT TESTS - WRITE ALL & CONN                                                                 */
/*************************************************************************************************/

// Test WriteAll loops until the lower node consumed everything
func (suite *ChainUnitTestSuite) TestWriteAll() {
	next := NewNodeInterfaceMock()
	in := NewBuffer(make([]byte, 5))
	in.Append([]byte("hello"))
	// Lower node accepts one byte per call
	next.On("Write", in, (*Buffer)(nil)).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*Buffer).Consume(1)
	})
	require.NoError(suite.T(), WriteAll(next, in, nil))
	require.True(suite.T(), in.Empty())
	next.AssertNumberOfCalls(suite.T(), "Write", 5)
}

// Test WriteAll stops on the first error
func (suite *ChainUnitTestSuite) TestWriteAllError() {
	next := NewNodeInterfaceMock()
	next.On("Name").Return("next").Maybe()
	in := NewBuffer(make([]byte, 5))
	in.Append([]byte("hello"))
	expected := NewNodeError(next, -1, "write failed", nil)
	next.On("Write", in, (*Buffer)(nil)).Return(expected).Once()
	require.Same(suite.T(), expected, WriteAll(next, in, nil))
	require.Equal(suite.T(), 5, in.Size())
}

// Test WriteAll reports a lower node which returns nil without consuming anything
func (suite *ChainUnitTestSuite) TestWriteAllWithoutProgress() {
	next := NewNodeInterfaceMock()
	next.On("Name").Return("next").Maybe()
	in := NewBuffer(make([]byte, 5))
	in.Append([]byte("hello"))
	// Lower node accepts two bytes, then nothing
	next.On("Write", in, (*Buffer)(nil)).Return(nil).Run(func(args mock.Arguments) {
		args.Get(0).(*Buffer).Consume(2)
	}).Once()
	next.On("Write", in, (*Buffer)(nil)).Return(nil).Once()
	err := WriteAll(next, in, nil)
	nerr, ok := AsNodeError(err)
	require.True(suite.T(), ok, err)
	require.Same(suite.T(), next, nerr.Node)
	require.Equal(suite.T(), NoProgress, nerr.Code)
	require.ErrorIs(suite.T(), err, ErrNoProgress)
	require.Equal(suite.T(), 3, in.Size())
	next.AssertExpectations(suite.T())
	// Conn reports the bytes consumed before the error
	conn := NewConn(next)
	next.On("Write", mock.Anything, (*Buffer)(nil)).Return(nil).Once()
	n, err := conn.Write([]byte("hello"))
	require.Equal(suite.T(), 0, n)
	require.ErrorIs(suite.T(), err, ErrNoProgress)
}

// Test Conn complies with net.Conn
func (suite *ChainUnitTestSuite) TestConnInterfaceCompliance() {
	var instance any = NewConn(NewNodeInterfaceMock())
	_, ok := instance.(net.Conn)
	require.True(suite.T(), ok)
}

// Test Conn Read and Write go through the node
func (suite *ChainUnitTestSuite) TestConnReadWrite() {
	node := NewNodeInterfaceMock()
	node.On("Name").Return("node")
	conn := NewConn(node)
	args := WithTimeout(time.Second)
	conn.SetArgs(args)
	// Read
	node.On("Read", mock.Anything, args).Return(nil).Run(func(margs mock.Arguments) {
		margs.Get(0).(*Buffer).Append([]byte("abc"))
	}).Once()
	p := make([]byte, 8)
	n, err := conn.Read(p)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "abc", string(p[:n]))
	// Empty read does not call the node
	n, err = conn.Read(nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, n)
	// Write: the node accepts two bytes per call
	node.On("Write", mock.Anything, (*Buffer)(nil)).Return(nil).Run(func(margs mock.Arguments) {
		in := margs.Get(0).(*Buffer)
		in.Consume(min(2, in.Size()))
	})
	n, err = conn.Write([]byte("hello"))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 5, n)
	node.AssertNumberOfCalls(suite.T(), "Write", 3)
	// Addresses and deadlines
	require.Equal(suite.T(), "node", conn.LocalAddr().Network())
	require.Equal(suite.T(), "node", conn.RemoteAddr().String())
	require.NoError(suite.T(), conn.SetDeadline(time.Now()))
	// Close
	node.On("Close").Return().Once()
	require.NoError(suite.T(), conn.Close())
	node.AssertExpectations(suite.T())
}

// Test Conn Read returns the bytes read before an error together with the error
func (suite *ChainUnitTestSuite) TestConnReadError() {
	node := NewNodeInterfaceMock()
	node.On("Name").Return("node").Maybe()
	conn := NewConn(node)
	expected := NewNodeError(node, -1, "remote closed", ErrRemoteClosed)
	node.On("Read", mock.Anything, (*NodeArgs)(nil)).Return(expected).Run(func(margs mock.Arguments) {
		margs.Get(0).(*Buffer).Append([]byte("x"))
	}).Once()
	p := make([]byte, 4)
	n, err := conn.Read(p)
	require.Same(suite.T(), expected, err)
	require.Equal(suite.T(), 1, n)
}
