package pipeline

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for NodeError unit tests
type NodeErrorUnitTestSuite struct {
	suite.Suite
}

// Run NodeErrorUnitTestSuite test suite
func TestNodeErrorUnitTestSuite(t *testing.T) {
	suite.Run(t, new(NodeErrorUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test NodeError implements error and net.Error
func (suite *NodeErrorUnitTestSuite) TestInterfaceCompliance() {
	var instance any = NewNodeError(nil, -1, "desc", nil)
	_, ok := instance.(error)
	require.True(suite.T(), ok)
	_, ok = instance.(net.Error)
	require.True(suite.T(), ok)
}

// Test Error formats the failing node, the code, the description and the embedded error
func (suite *NodeErrorUnitTestSuite) TestError() {
	node := NewNodeInterfaceMock()
	node.On("Name").Return("socket")
	// Without embedded error
	err := NewNodeError(node, -10001, "remote closed", nil)
	require.Equal(suite.T(), "node socket failed (-10001): remote closed", err.Error())
	// With embedded error
	err = NewNodeError(node, -10001, "remote closed", ErrRemoteClosed)
	require.Equal(suite.T(), fmt.Sprintf("node socket failed (-10001): remote closed: %v", ErrRemoteClosed), err.Error())
	// Without node
	err = NewNodeError(nil, -1, "oops", nil)
	require.Equal(suite.T(), "node <nil> failed (-1): oops", err.Error())
}

// Test Unwrap, Timeout and Temporary
func (suite *NodeErrorUnitTestSuite) TestUnwrapAndTimeout() {
	node := NewNodeInterfaceMock()
	node.On("Name").Return("socket").Maybe()
	// Timeout error
	err := NewNodeError(node, -10006, "read timeout", ErrTimeout)
	require.ErrorIs(suite.T(), err, ErrTimeout)
	require.True(suite.T(), err.Timeout())
	require.True(suite.T(), err.Temporary())
	// Remote closed error
	err = NewNodeError(node, -10001, "remote closed", ErrRemoteClosed)
	require.ErrorIs(suite.T(), err, ErrRemoteClosed)
	require.False(suite.T(), err.Timeout())
	require.False(suite.T(), err.Temporary())
	// Root cause
	root := errors.New("root")
	err = NewNodeError(node, -1, "failed", fmt.Errorf("wrapped: %w", root))
	require.ErrorIs(suite.T(), err, root)
}

// Test AsNodeError extracts a NodeError from an error chain
func (suite *NodeErrorUnitTestSuite) TestAsNodeError() {
	node := NewNodeInterfaceMock()
	node.On("Name").Return("socket").Maybe()
	nerr := NewNodeError(node, -10002, "failed", nil)
	// Wrapped node error
	found, ok := AsNodeError(fmt.Errorf("outer: %w", nerr))
	require.True(suite.T(), ok)
	require.Same(suite.T(), nerr, found)
	require.Equal(suite.T(), int32(-10002), found.Code)
	// Plain error
	found, ok = AsNodeError(errors.New("plain"))
	require.False(suite.T(), ok)
	require.Nil(suite.T(), found)
	// nil
	_, ok = AsNodeError(nil)
	require.False(suite.T(), ok)
	node.AssertNotCalled(suite.T(), "Read", mock.Anything, mock.Anything)
}
