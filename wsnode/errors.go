package wsnode

import (
	"errors"

	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/wsframe"
)

// Error codes reported by the websocket node.
const (
	HandshakeFailed           int32 = -30000
	InvalidOpcode             int32 = -30001
	InvalidControlFrameFormat int32 = -30002
	InsufficientReadBuffer    int32 = -30003
	InsufficientWriteBuffer   int32 = -30004
	NotReady                  int32 = -30005
	MaskingFailed             int32 = -30006
	InvalidLength             int32 = -30007
)

// Create a HANDSHAKE_FAILED error of the node
func (node *WSNode) handshakeError(desc string, err error) *pipeline.NodeError {
	return pipeline.NewNodeError(node, HandshakeFailed, desc, err)
}

// Create a NOT_READY error of the node
func (node *WSNode) notReadyError() *pipeline.NodeError {
	return pipeline.NewNodeError(node, NotReady, "websocket node is not initialized", pipeline.ErrNotReady)
}

// Map a frame header validation error on the matching node error
func (node *WSNode) frameError(err error) *pipeline.NodeError {
	switch {
	case errors.Is(err, wsframe.ErrInvalidOpcode):
		return pipeline.NewNodeError(node, InvalidOpcode, "invalid opcode", err)
	case errors.Is(err, wsframe.ErrInvalidControlFrame):
		return pipeline.NewNodeError(node, InvalidControlFrameFormat, "invalid control frame format", err)
	case errors.Is(err, wsframe.ErrInvalidLength):
		return pipeline.NewNodeError(node, InvalidLength, "invalid payload length", err)
	default:
		return pipeline.NewNodeError(node, InvalidOpcode, "invalid frame header", err)
	}
}
