// Package wsnode provides the websocket framing node: a pass-through node which performs the
// client opening handshake over its next node and then encodes and decodes RFC6455 frames,
// incrementally, across partial reads and writes of the next node.
package wsnode

import (
	"context"
	"crypto/rand"

	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/wsframe"
	"go.uber.org/zap"
)

// Name of the websocket node
const nodeName = "websocket"

// Progress of the frame being written
type writeState int

const (
	// Header bytes remain to be accepted by the next node
	writingHeader writeState = iota
	// Header has been accepted, payload bytes remain to be accepted by the next node
	writingPayload
)

// Websocket framing node (client role).
//
// Outbound frames are always masked, with a fresh random masking key per frame unless a key is
// fixed with SetMaskingKey. Inbound frames can be masked or not.
//
// A Read call returns exactly one frame payload. When the next node fails (timeout included) or
// when out is full before the end of the payload, the partially decoded frame is kept and the
// next Read call resumes it: the caller must then provide the same out buffer.
type WSNode struct {
	// Node options
	opts *WSNodeOptions
	// Logger
	logger *zap.Logger
	// Next node
	next pipeline.NodeInterface
	// Whether the handshake succeeded
	ready bool
	// Bytes received during the handshake after the response headers
	pending *pipeline.Buffer

	/* Write state */

	// Default write scratch buffer
	defaultWriteBuffer *pipeline.Buffer
	// Write scratch buffer in use
	writeBuffer *pipeline.Buffer
	// Progress of the frame being written
	writeState writeState
	// Fixed masking key. Used when fixedMask is true.
	maskingKey [4]byte
	fixedMask  bool

	/* Read state */

	// Header of the frame being read
	frameHeader [wsframe.MaxHeaderLen]byte
	// Number of header bytes received
	readFrameHeaderSize int
	// Expected header length: 2 until the length byte is known
	readFrameHeaderLen int
	// Whether the header of the frame being read is complete
	readHeaderDone bool
	// Payload bytes of the frame being read not received yet
	expectedReadPayloadSize uint64
	// Flags of the frame being read
	readFlags wsframe.Flags
	// Masking of the frame being read
	readMasked  bool
	readMask    [4]byte
	readMaskPos int
}

// # Description
//
// Factory which creates a new, not chained and not initialized WSNode.
//
// # Inputs
//
//   - opts: Node options. Default options are used if nil.
//
// # Returns
//
// The new node or an error if options are invalid.
func NewWSNode(opts *WSNodeOptions) (*WSNode, error) {
	if opts == nil {
		opts = NewWSNodeOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	node := &WSNode{
		opts:               opts,
		logger:             logger.With(zap.String("node", nodeName)),
		defaultWriteBuffer: pipeline.NewBuffer(make([]byte, opts.WriteBufferSize)),
	}
	node.writeBuffer = node.defaultWriteBuffer
	node.resetReadState()
	return node, nil
}

func (node *WSNode) Name() string {
	return nodeName
}

// Chain sets the node the frames are read from and written to.
func (node *WSNode) Chain(next pipeline.NodeInterface) {
	node.next = next
}

func (node *WSNode) Next() pipeline.NodeInterface {
	return node.next
}

// # Description
//
// Init the next node, then perform the websocket opening handshake over it.
//
// # Inputs
//
//   - ctx: Context used for timeout purpose. Its deadline is used as read timeout while waiting
//     for the upgrade response.
//   - dst: Destination. Path and host are used in the upgrade request.
//
// # Returns
//
//   - NOT_READY if the node is not chained.
//   - The next node error, unchanged, if the next node fails.
//   - HANDSHAKE_FAILED if the server response is not a valid upgrade response.
func (node *WSNode) Init(ctx context.Context, dst pipeline.Destination) error {
	if node.next == nil {
		return pipeline.NewNodeError(node, NotReady, "websocket node is not chained", pipeline.ErrNotReady)
	}
	// Reset state
	node.ready = false
	node.pending = nil
	node.writeState = writingHeader
	node.resetReadState()
	// Init next node first
	if err := node.next.Init(ctx, dst); err != nil {
		return err
	}
	// Opening handshake
	if err := node.handshake(ctx, dst); err != nil {
		return err
	}
	node.ready = true
	return nil
}

/*************************************************************************************************/
/* READ                                                                                          */
/*************************************************************************************************/

// # Description
//
// Read one frame: decode its header, then read its payload into out (unmasked if the frame is
// masked). On success, the frame flags (opcode | FIN) are written in args.Flags when provided.
//
// The header is read incrementally, never asking the next node for more bytes than the ones
// still missing, and is validated before any payload byte is read.
//
// # Inputs
//
//   - out: Buffer which receives the payload. Must be the same buffer when a Read call resumes
//     a partially read frame.
//   - args: Optional. Timeout is forwarded to the next node, Flags receives the frame flags.
//
// # Returns
//
//   - nil when a complete frame payload has been appended to out.
//   - NOT_READY if the node is not initialized.
//   - INVALID_OPCODE, INVALID_CONTROL_FRAME_FORMAT or INVALID_LENGTH if the frame header is
//     invalid.
//   - INSUFFICIENT_READ_BUFFER if out is full before the end of the payload. Frame state is kept.
//   - The next node error, unchanged. Frame state is kept.
//   - A NoProgress error of the next node if it returned nil without any byte. Frame state is
//     kept.
func (node *WSNode) Read(out *pipeline.Buffer, args *pipeline.NodeArgs) error {
	if !node.ready {
		return node.notReadyError()
	}
	// Frame header
	if !node.readHeaderDone {
		if err := node.readHeader(args); err != nil {
			return err
		}
	}
	// Frame payload
	for node.expectedReadPayloadSize > 0 {
		if out.Full() {
			return pipeline.NewNodeError(node, InsufficientReadBuffer, "read buffer is too small for the frame payload", nil)
		}
		// Never read beyond the payload
		want := out.Space()
		if uint64(want) > node.expectedReadPayloadSize {
			want = int(node.expectedReadPayloadSize)
		}
		view := out.Tail(want)
		err := node.readNext(view, args)
		if got := view.Size(); got > 0 {
			if node.readMasked {
				node.readMaskPos = wsframe.Mask(node.readMask, node.readMaskPos, view.Bytes())
			}
			out.Obtain(got)
			node.expectedReadPayloadSize -= uint64(got)
		}
		if err != nil {
			return err
		}
	}
	// Frame complete
	args.SetFlags(node.readFlags)
	node.logger.Debug("frame received",
		zap.String("opcode", node.readFlags.Opcode().String()),
		zap.Bool("fin", node.readFlags.Fin()))
	node.resetReadState()
	return nil
}

// Accumulate and decode the frame header
func (node *WSNode) readHeader(args *pipeline.NodeArgs) error {
	for node.readFrameHeaderSize < node.readFrameHeaderLen {
		// Ask for the missing header bytes only
		view := pipeline.NewBuffer(node.frameHeader[node.readFrameHeaderSize:node.readFrameHeaderLen])
		err := node.readNext(view, args)
		node.readFrameHeaderSize += view.Size()
		if node.readFrameHeaderLen == wsframe.MinHeaderLen && node.readFrameHeaderSize == wsframe.MinHeaderLen {
			// Validate opcode and control frame rules as soon as the first two bytes are known
			if verr := node.checkFirstBytes(); verr != nil {
				node.resetReadState()
				return verr
			}
			node.readFrameHeaderLen = wsframe.HeaderLen(node.frameHeader[:wsframe.MinHeaderLen])
		}
		if err != nil {
			return err
		}
	}
	h, _, err := wsframe.ParseHeader(node.frameHeader[:node.readFrameHeaderLen])
	if err != nil {
		node.resetReadState()
		return node.frameError(err)
	}
	node.readHeaderDone = true
	node.expectedReadPayloadSize = h.Length
	node.readFlags = h.Flags()
	node.readMasked = h.Masked
	node.readMask = h.Mask
	node.readMaskPos = 0
	return nil
}

// Validate the frame opcode and control frame rules from the first two header bytes
func (node *WSNode) checkFirstBytes() error {
	partial := wsframe.Header{
		Fin:    node.frameHeader[0]&0x80 != 0,
		Opcode: wsframe.Opcode(node.frameHeader[0] & 0x0F),
		Length: uint64(node.frameHeader[1] & 0x7F),
	}
	if err := partial.Validate(); err != nil {
		return node.frameError(err)
	}
	return nil
}

// Read from the bytes left by the handshake first, then from the next node
func (node *WSNode) readNext(view *pipeline.Buffer, args *pipeline.NodeArgs) error {
	if node.pending != nil {
		n := view.Append(node.pending.Bytes())
		node.pending.Consume(n)
		if node.pending.Empty() {
			node.pending = nil
		}
		return nil
	}
	before := view.Size()
	if err := node.next.Read(view, args); err != nil {
		return err
	}
	if view.Size() == before {
		return pipeline.NewNoProgressError(node.next, "read")
	}
	return nil
}

// Reset the read state machine
func (node *WSNode) resetReadState() {
	node.readFrameHeaderSize = 0
	node.readFrameHeaderLen = wsframe.MinHeaderLen
	node.readHeaderDone = false
	node.expectedReadPayloadSize = 0
	node.readFlags = 0
	node.readMasked = false
	node.readMask = [4]byte{}
	node.readMaskPos = 0
}

/*************************************************************************************************/
/* WRITE                                                                                         */
/*************************************************************************************************/

// # Description
//
// Write in as a single final binary frame. in is consumed once the whole frame has been
// accepted by the next node.
//
// # Inputs
//
//   - in: Frame payload.
//   - out: Optional write scratch buffer used instead of the node write buffer. Its content is
//     overwritten.
//
// # Returns
//
// nil on success, a node error otherwise (see SendFrame).
func (node *WSNode) Write(in *pipeline.Buffer, out *pipeline.Buffer) error {
	scratch := node.writeBuffer
	if out != nil {
		scratch = out
	}
	if err := node.sendFrame(in.Bytes(), wsframe.DefaultFlags, scratch); err != nil {
		return err
	}
	in.Consume(in.Size())
	return nil
}

// # Description
//
// Send a single frame.
//
// The frame header and the masked payload are written through the write scratch buffer: the
// header first, then the payload in chunks as large as the buffer. The payload is not modified.
//
// # Inputs
//
//   - payload: Frame payload. Can be empty.
//   - flags: Frame flags (opcode | FIN). wsframe.DefaultFlags sends a final binary frame.
//
// # Returns
//
//   - nil when the whole frame has been accepted by the next node.
//   - NOT_READY if the node is not initialized.
//   - INVALID_OPCODE if the opcode is not a defined one.
//   - INVALID_CONTROL_FRAME_FORMAT if a control frame has no FIN or a payload over 125 bytes.
//   - INSUFFICIENT_WRITE_BUFFER if the write buffer cannot hold the frame header.
//   - The next node error, unchanged. The connection must then be closed.
//   - A NoProgress error of the next node if it returned nil without consuming any byte.
func (node *WSNode) SendFrame(payload []byte, flags wsframe.Flags) error {
	return node.sendFrame(payload, flags, node.writeBuffer)
}

// Ping sends a PING frame with the provided payload (at most 125 bytes).
func (node *WSNode) Ping(payload []byte) error {
	return node.SendFrame(payload, wsframe.NewFlags(wsframe.OpcodePing, true))
}

// Pong sends a PONG frame with the provided payload (at most 125 bytes).
func (node *WSNode) Pong(payload []byte) error {
	return node.SendFrame(payload, wsframe.NewFlags(wsframe.OpcodePong, true))
}

// SendClose sends a CLOSE frame with the status code and the reason, truncated to 123 bytes.
func (node *WSNode) SendClose(code wsframe.StatusCode, reason string) error {
	return node.SendFrame(wsframe.ClosePayload(code, reason), wsframe.NewFlags(wsframe.OpcodeClose, true))
}

// SetMaskingKey fixes the masking key used by all the following frames.
func (node *WSNode) SetMaskingKey(key [4]byte) {
	node.maskingKey = key
	node.fixedMask = true
}

// ResetMaskingKey restores the default behaviour: a fresh random masking key per frame.
func (node *WSNode) ResetMaskingKey() {
	node.maskingKey = [4]byte{}
	node.fixedMask = false
}

// SetWriteBuffer replaces the write scratch buffer by a caller owned one. nil restores the node
// buffer. The buffer must be able to hold the header of the frames to send.
func (node *WSNode) SetWriteBuffer(buf *pipeline.Buffer) {
	if buf == nil {
		buf = node.defaultWriteBuffer
	}
	node.writeBuffer = buf
}

// Send a frame through the provided scratch buffer
func (node *WSNode) sendFrame(payload []byte, flags wsframe.Flags, scratch *pipeline.Buffer) error {
	if !node.ready {
		return node.notReadyError()
	}
	// Build and check header
	key, err := node.nextMaskingKey()
	if err != nil {
		return pipeline.NewNodeError(node, MaskingFailed, "failed to generate masking key", err)
	}
	h := wsframe.Header{
		Fin:    flags.Fin(),
		Opcode: flags.Opcode(),
		Masked: true,
		Length: uint64(len(payload)),
		Mask:   key,
	}
	if err := h.Validate(); err != nil {
		return node.frameError(err)
	}
	if scratch.Capacity() < h.Len() {
		return pipeline.NewNodeError(node, InsufficientWriteBuffer, "write buffer is too small for the frame header", nil)
	}
	// Header, followed by as much masked payload as fits
	scratch.Clear()
	n, _ := wsframe.PutHeader(scratch.Free(), h)
	scratch.Obtain(n)
	headerLeft := n
	payloadPos, maskPos := 0, 0
	fill := func() {
		chunk := scratch.Free()[:min(scratch.Space(), len(payload)-payloadPos)]
		copy(chunk, payload[payloadPos:])
		maskPos = wsframe.Mask(key, maskPos, chunk)
		scratch.Obtain(len(chunk))
		payloadPos += len(chunk)
	}
	fill()
	node.writeState = writingHeader
	for {
		for !scratch.Empty() {
			before := scratch.Size()
			if err := node.next.Write(scratch, nil); err != nil {
				node.writeState = writingHeader
				return err
			}
			if scratch.Size() == before {
				node.writeState = writingHeader
				return pipeline.NewNoProgressError(node.next, "write")
			}
			if node.writeState == writingHeader {
				headerLeft -= before - scratch.Size()
				if headerLeft <= 0 {
					node.writeState = writingPayload
				}
			}
		}
		if payloadPos == len(payload) {
			break
		}
		scratch.Clear()
		fill()
	}
	node.writeState = writingHeader
	node.logger.Debug("frame sent",
		zap.String("opcode", h.Opcode.String()),
		zap.Bool("fin", h.Fin),
		zap.Int("size", len(payload)))
	return nil
}

// Get the masking key of the next frame
func (node *WSNode) nextMaskingKey() ([4]byte, error) {
	if node.fixedMask {
		return node.maskingKey, nil
	}
	var key [4]byte
	_, err := rand.Read(key[:])
	return key, err
}

/*************************************************************************************************/
/* CLOSE                                                                                         */
/*************************************************************************************************/

// Close resets the node state and closes the next node. It does not send a close frame: use
// SendClose first for a clean closure.
func (node *WSNode) Close() {
	if node.ready {
		node.logger.Info("websocket node closed")
	}
	node.ready = false
	node.pending = nil
	node.writeState = writingHeader
	node.resetReadState()
	if node.next != nil {
		node.next.Close()
	}
}
