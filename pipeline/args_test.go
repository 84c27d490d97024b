package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/gbdevw/gowsnode/wsframe"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite used for NodeArgs unit tests
type ArgsUnitTestSuite struct {
	suite.Suite
}

// Run ArgsUnitTestSuite test suite
func TestArgsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(ArgsUnitTestSuite))
}

/*************************************************************************************************/
/* NODE ARGS                                                                                     */
/*************************************************************************************************/

// Test nil NodeArgs and nil fields mean "not provided"
func (suite *ArgsUnitTestSuite) TestNilArgs() {
	var args *NodeArgs
	_, ok := args.GetTimeout()
	require.False(suite.T(), ok)
	// Must not panic
	args.SetFlags(wsframe.DefaultFlags)
	args = &NodeArgs{}
	_, ok = args.GetTimeout()
	require.False(suite.T(), ok)
	args.SetFlags(wsframe.DefaultFlags)
}

// Test WithTimeout and WithFlags helpers
func (suite *ArgsUnitTestSuite) TestHelpers() {
	timeout, ok := WithTimeout(2 * time.Second).GetTimeout()
	require.True(suite.T(), ok)
	require.Equal(suite.T(), 2*time.Second, timeout)
	// Flags output slot
	var flags wsframe.Flags
	args := WithFlags(&flags)
	args.SetFlags(wsframe.NewFlags(wsframe.OpcodePong, true))
	require.Equal(suite.T(), wsframe.OpcodePong, flags.Opcode())
	require.True(suite.T(), flags.Fin())
}

// Test ArgsFromContext derives the timeout from the context deadline
func (suite *ArgsUnitTestSuite) TestArgsFromContext() {
	// No deadline
	require.Nil(suite.T(), ArgsFromContext(context.Background()))
	// Deadline in the future
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	timeout, ok := ArgsFromContext(ctx).GetTimeout()
	require.True(suite.T(), ok)
	require.Greater(suite.T(), timeout, time.Duration(0))
	require.LessOrEqual(suite.T(), timeout, time.Minute)
	// Deadline exceeded
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	timeout, ok = ArgsFromContext(expired).GetTimeout()
	require.True(suite.T(), ok)
	require.Equal(suite.T(), time.Nanosecond, timeout)
}
