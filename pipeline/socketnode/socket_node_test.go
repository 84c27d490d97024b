package socketnode

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for SocketNode tests. A local TCP listener is started for each test.
type SocketNodeTestSuite struct {
	suite.Suite
	// Local listener
	listener net.Listener
	// Accepted server side connections
	accepted chan net.Conn
}

// Run SocketNodeTestSuite test suite
func TestSocketNodeTestSuite(t *testing.T) {
	suite.Run(t, new(SocketNodeTestSuite))
}

// Start a local listener which publishes accepted connections
func (suite *SocketNodeTestSuite) SetupTest() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(suite.T(), err)
	suite.listener = listener
	suite.accepted = make(chan net.Conn, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			suite.accepted <- conn
		}
	}()
}

// Stop the local listener
func (suite *SocketNodeTestSuite) TearDownTest() {
	suite.listener.Close()
}

// Destination of the local listener
func (suite *SocketNodeTestSuite) destination() pipeline.Destination {
	addr := suite.listener.Addr().(*net.TCPAddr)
	dst, err := pipeline.ParseDestination("ws://127.0.0.1:" + strconv.Itoa(addr.Port) + "/")
	require.NoError(suite.T(), err)
	return dst
}

// Create and connect a node, return it with the server side connection
func (suite *SocketNodeTestSuite) connect(opts *SocketNodeOptions) (*SocketNode, net.Conn) {
	node, err := NewSocketNode(opts)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), node.Init(context.Background(), suite.destination()))
	select {
	case conn := <-suite.accepted:
		return node, conn
	case <-time.After(5 * time.Second):
		suite.FailNow("server did not accept connection")
	}
	return nil, nil
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test compliance with NodeInterface
func (suite *SocketNodeTestSuite) TestInterfaceCompliance() {
	node, err := NewSocketNode(nil)
	require.NoError(suite.T(), err)
	var instance any = node
	_, ok := instance.(pipeline.NodeInterface)
	require.True(suite.T(), ok)
}

// Test options validation
func (suite *SocketNodeTestSuite) TestOptions() {
	require.Error(suite.T(), Validate(nil))
	require.NoError(suite.T(), Validate(NewSocketNodeOptions()))
	_, err := NewSocketNode(NewSocketNodeOptions().WithConnectTimeout(-time.Second))
	require.Error(suite.T(), err)
	_, err = NewSocketNode(NewSocketNodeOptions().WithReadTimeout(-time.Second))
	require.Error(suite.T(), err)
}

// Test calls on a node which is not initialized and Close idempotency
func (suite *SocketNodeTestSuite) TestNotReady() {
	node, err := NewSocketNode(nil)
	require.NoError(suite.T(), err)
	// Read
	err = node.Read(pipeline.NewBuffer(make([]byte, 8)), nil)
	nerr, ok := pipeline.AsNodeError(err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), NotReady, nerr.Code)
	require.ErrorIs(suite.T(), err, pipeline.ErrNotReady)
	// Write
	in := pipeline.NewBuffer(make([]byte, 2))
	in.Append([]byte("hi"))
	err = node.Write(in, nil)
	nerr, ok = pipeline.AsNodeError(err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), NotReady, nerr.Code)
	require.Equal(suite.T(), 2, in.Size())
	// Close never initialized node twice
	node.Close()
	node.Close()
}

// Test Init fails when nobody listens
func (suite *SocketNodeTestSuite) TestConnectFailed() {
	dst := suite.destination()
	suite.listener.Close()
	node, err := NewSocketNode(NewSocketNodeOptions().WithConnectTimeout(2 * time.Second))
	require.NoError(suite.T(), err)
	err = node.Init(context.Background(), dst)
	nerr, ok := pipeline.AsNodeError(err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), ConnectFailed, nerr.Code)
	require.Same(suite.T(), node, nerr.Node)
}

// Test bytes written by the node reach the peer and bytes sent by the peer are read
func (suite *SocketNodeTestSuite) TestReadWrite() {
	node, conn := suite.connect(nil)
	defer node.Close()
	defer conn.Close()
	// Write
	in := pipeline.NewBuffer(make([]byte, 5))
	in.Append([]byte("hello"))
	require.NoError(suite.T(), pipeline.WriteAll(node, in, nil))
	received := make([]byte, 5)
	_, err := io.ReadFull(conn, received)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "hello", string(received))
	// Read
	_, err = conn.Write([]byte("world"))
	require.NoError(suite.T(), err)
	out := pipeline.NewBuffer(make([]byte, 16))
	for out.Size() < 5 {
		require.NoError(suite.T(), node.Read(out, pipeline.WithTimeout(5*time.Second)))
	}
	require.Equal(suite.T(), "world", string(out.Bytes()))
	// Full buffer
	full := pipeline.NewBuffer(make([]byte, 1))
	full.Append([]byte("x"))
	nerr, ok := pipeline.AsNodeError(node.Read(full, nil))
	require.True(suite.T(), ok)
	require.Equal(suite.T(), InsufficientBuffer, nerr.Code)
}

// Test a read timeout leaves the node usable
func (suite *SocketNodeTestSuite) TestReadTimeout() {
	node, conn := suite.connect(NewSocketNodeOptions().WithReadTimeout(50 * time.Millisecond))
	defer node.Close()
	defer conn.Close()
	// Default read timeout
	out := pipeline.NewBuffer(make([]byte, 16))
	err := node.Read(out, nil)
	nerr, ok := pipeline.AsNodeError(err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), ReadTimeout, nerr.Code)
	require.True(suite.T(), nerr.Timeout())
	require.ErrorIs(suite.T(), err, pipeline.ErrTimeout)
	// Timeout provided by args
	err = node.Read(out, pipeline.WithTimeout(10*time.Millisecond))
	require.ErrorIs(suite.T(), err, pipeline.ErrTimeout)
	// Resume
	_, err = conn.Write([]byte("late"))
	require.NoError(suite.T(), err)
	for out.Size() < 4 {
		require.NoError(suite.T(), node.Read(out, pipeline.WithTimeout(5*time.Second)))
	}
	require.Equal(suite.T(), "late", string(out.Bytes()))
}

// Test remote close is reported as REMOTE_CLOSED
func (suite *SocketNodeTestSuite) TestRemoteClosed() {
	node, conn := suite.connect(nil)
	defer node.Close()
	conn.Close()
	err := node.Read(pipeline.NewBuffer(make([]byte, 16)), pipeline.WithTimeout(5*time.Second))
	nerr, ok := pipeline.AsNodeError(err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), RemoteClosed, nerr.Code)
	require.ErrorIs(suite.T(), err, pipeline.ErrRemoteClosed)
}
