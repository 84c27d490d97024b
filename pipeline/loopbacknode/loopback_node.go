// Package loopbacknode provides an in-memory terminal node which behaves like a minimal
// websocket echo server: it accepts the upgrade request, answers PING with PONG and echoes every
// other frame. It supports chunked deliveries and failure injection.
package loopbacknode

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/eapache/queue"
	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/wsframe"
	"go.uber.org/zap"
)

// Error codes reported by the loopback node.
const (
	NotReady           int32 = -40000
	ProtocolError      int32 = -40001
	InsufficientBuffer int32 = -40002
	InjectedFailure    int32 = -40003
	NoData             int32 = -40004
	RemoteClosed       int32 = -40005
)

// Name of the loopback node
const nodeName = "loopback"

// Terminal node which plays the server role of a websocket connection in memory.
type LoopbackNode struct {
	// Node options
	opts *LoopbackNodeOptions
	// Logger
	logger *zap.Logger
	// Whether the node is initialized
	ready bool
	// Whether the upgrade request has been answered
	upgraded bool
	// Whether a close frame has been echoed
	closing bool
	// Client bytes not processed yet
	inbound []byte
	// Every byte written by the client since Init
	received []byte
	// Server bytes waiting to be read, one []byte per queued element
	outbound *queue.Queue
	// Number of bytes already delivered from the element at the head of outbound
	headOffset int
	// Injected failures
	failInit  error
	failRead  error
	failWrite error
}

// # Description
//
// Factory which creates a new, not initialized LoopbackNode.
//
// # Inputs
//
//   - opts: Node options. Default options are used if nil.
//
// # Returns
//
// The new node or an error if options are invalid.
func NewLoopbackNode(opts *LoopbackNodeOptions) (*LoopbackNode, error) {
	if opts == nil {
		opts = NewLoopbackNodeOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopbackNode{
		opts:     opts,
		logger:   logger.With(zap.String("node", nodeName)),
		outbound: queue.New(),
	}, nil
}

func (node *LoopbackNode) Name() string {
	return nodeName
}

// Init resets the node state and makes it ready. It fails only when a failure was injected
// with FailNextInit.
func (node *LoopbackNode) Init(ctx context.Context, dst pipeline.Destination) error {
	node.reset()
	if node.failInit != nil {
		err := node.failInit
		node.failInit = nil
		return err
	}
	node.ready = true
	node.logger.Info("loopback ready", zap.String("destination", dst.String()))
	return nil
}

// # Description
//
// Deliver queued server bytes into the free space of out, at most MaxReadChunk bytes.
//
// # Returns
//
//   - NOT_READY if the node is not initialized.
//   - The error injected with FailNextRead, once.
//   - INSUFFICIENT_BUFFER if out has no free space.
//   - REMOTE_CLOSED (wraps pipeline.ErrRemoteClosed) if a close frame has been echoed and all
//     queued bytes have been read.
//   - NO_DATA (wraps pipeline.ErrTimeout) if nothing is queued: a loopback read can never be
//     satisfied later in the same call so it behaves like an immediate read timeout.
func (node *LoopbackNode) Read(out *pipeline.Buffer, args *pipeline.NodeArgs) error {
	if !node.ready {
		return pipeline.NewNodeError(node, NotReady, "loopback is not initialized", pipeline.ErrNotReady)
	}
	if node.failRead != nil {
		err := node.failRead
		node.failRead = nil
		return err
	}
	if out.Full() {
		return pipeline.NewNodeError(node, InsufficientBuffer, "read buffer has no free space", nil)
	}
	if node.outbound.Length() == 0 {
		if node.closing {
			return pipeline.NewNodeError(node, RemoteClosed, "remote closed the connection", pipeline.ErrRemoteClosed)
		}
		return pipeline.NewNodeError(node, NoData, "no data available", pipeline.ErrTimeout)
	}
	// Deliver as many bytes as allowed, possibly from several queued elements
	limit := out.Space()
	if node.opts.MaxReadChunk > 0 && node.opts.MaxReadChunk < limit {
		limit = node.opts.MaxReadChunk
	}
	for limit > 0 && node.outbound.Length() > 0 {
		head := node.outbound.Peek().([]byte)
		n := out.Append(head[node.headOffset:min(len(head), node.headOffset+limit)])
		node.headOffset += n
		limit -= n
		if node.headOffset == len(head) {
			node.outbound.Remove()
			node.headOffset = 0
		}
	}
	return nil
}

// # Description
//
// Consume at most MaxWriteChunk bytes of in and process them as client bytes: the first bytes
// must form the upgrade request, the following ones websocket frames.
//
// # Returns
//
//   - NOT_READY if the node is not initialized.
//   - The error injected with FailNextWrite, once. No byte is consumed in that case.
//   - PROTOCOL_ERROR if the client bytes are not a valid upgrade request or a valid frame.
func (node *LoopbackNode) Write(in *pipeline.Buffer, out *pipeline.Buffer) error {
	if !node.ready {
		return pipeline.NewNodeError(node, NotReady, "loopback is not initialized", pipeline.ErrNotReady)
	}
	if node.failWrite != nil {
		err := node.failWrite
		node.failWrite = nil
		return err
	}
	// Accept bytes
	n := in.Size()
	if node.opts.MaxWriteChunk > 0 && node.opts.MaxWriteChunk < n {
		n = node.opts.MaxWriteChunk
	}
	accepted := in.Bytes()[:n]
	node.inbound = append(node.inbound, accepted...)
	node.received = append(node.received, accepted...)
	in.Consume(n)
	// Process what can be processed
	if !node.upgraded {
		done, err := node.upgrade()
		if err != nil || !done {
			return err
		}
	}
	return node.echoFrames()
}

// Close resets the node. Queued bytes and injected failures are dropped.
func (node *LoopbackNode) Close() {
	if node.ready {
		node.logger.Info("loopback closed")
	}
	node.reset()
	node.failRead = nil
	node.failWrite = nil
}

/*************************************************************************************************/
/* TEST HOOKS                                                                                    */
/*************************************************************************************************/

// FailNextInit makes the next Init call return err.
func (node *LoopbackNode) FailNextInit(err error) {
	node.failInit = err
}

// FailNextRead makes the next Read call return err.
func (node *LoopbackNode) FailNextRead(err error) {
	node.failRead = err
}

// FailNextWrite makes the next Write call return err without consuming any byte.
func (node *LoopbackNode) FailNextWrite(err error) {
	node.failWrite = err
}

// InjectedError returns an INJECTED_FAILURE node error of this node wrapping err. Use it with
// FailNextRead or FailNextWrite, for instance with pipeline.ErrTimeout.
func (node *LoopbackNode) InjectedError(err error) *pipeline.NodeError {
	return pipeline.NewNodeError(node, InjectedFailure, "injected failure", err)
}

// Inject queues raw server bytes which will be delivered by the following Read calls.
func (node *LoopbackNode) Inject(raw []byte) {
	if len(raw) == 0 {
		return
	}
	node.outbound.Add(append([]byte(nil), raw...))
}

// Received returns a copy of every byte written by the client since Init.
func (node *LoopbackNode) Received() []byte {
	return append([]byte(nil), node.received...)
}

// Pending returns the number of queued server bytes not read yet.
func (node *LoopbackNode) Pending() int {
	total := -node.headOffset
	for i := 0; i < node.outbound.Length(); i++ {
		total += len(node.outbound.Get(i).([]byte))
	}
	return total
}

/*************************************************************************************************/
/* SERVER SIDE PROCESSING                                                                        */
/*************************************************************************************************/

// Reset all state
func (node *LoopbackNode) reset() {
	node.ready = false
	node.upgraded = false
	node.closing = false
	node.inbound = nil
	node.received = nil
	node.outbound = queue.New()
	node.headOffset = 0
}

// Answer the upgrade request once it is complete. Returns true when the request has been
// processed.
func (node *LoopbackNode) upgrade() (bool, error) {
	end := bytes.Index(node.inbound, []byte("\r\n\r\n"))
	if end < 0 {
		return false, nil
	}
	end += 4
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(node.inbound[:end])))
	if err != nil {
		return false, pipeline.NewNodeError(node, ProtocolError, "malformed upgrade request", err)
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if req.Method != http.MethodGet ||
		!strings.EqualFold(req.Header.Get("Upgrade"), "websocket") ||
		req.Header.Get("Sec-WebSocket-Version") != "13" ||
		key == "" {
		return false, pipeline.NewNodeError(node, ProtocolError, "invalid upgrade request", nil)
	}
	node.inbound = node.inbound[end:]
	node.upgraded = true
	// Answer
	var response []byte
	if node.opts.UpgradeResponse != nil {
		response = node.opts.UpgradeResponse(key)
	} else {
		response = []byte("HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + wsframe.ComputeAcceptKey(key) + "\r\n\r\n")
	}
	node.Inject(response)
	node.logger.Debug("upgrade request answered", zap.String("path", req.URL.RequestURI()))
	return true, nil
}

// Echo every complete frame of inbound
func (node *LoopbackNode) echoFrames() error {
	for len(node.inbound) >= wsframe.MinHeaderLen {
		hlen := wsframe.HeaderLen(node.inbound)
		if len(node.inbound) < hlen {
			return nil
		}
		h, _, err := wsframe.ParseHeader(node.inbound[:hlen])
		if err != nil {
			return pipeline.NewNodeError(node, ProtocolError, "invalid client frame", err)
		}
		if !h.Masked {
			return pipeline.NewNodeError(node, ProtocolError, "client frame is not masked", nil)
		}
		if uint64(len(node.inbound)-hlen) < h.Length {
			return nil
		}
		total := hlen + int(h.Length)
		payload := append([]byte(nil), node.inbound[hlen:total]...)
		wsframe.Mask(h.Mask, 0, payload)
		node.inbound = node.inbound[total:]
		// Reply
		reply := wsframe.Header{Fin: h.Fin, Opcode: h.Opcode, Length: h.Length}
		switch h.Opcode {
		case wsframe.OpcodePing:
			reply.Opcode = wsframe.OpcodePong
		case wsframe.OpcodeClose:
			node.closing = true
		}
		frame, err := encode(reply, payload)
		if err != nil {
			return pipeline.NewNodeError(node, ProtocolError, "failed to encode reply", err)
		}
		node.Inject(frame)
		node.logger.Debug("frame echoed",
			zap.String("opcode", h.Opcode.String()),
			zap.String("reply", reply.Opcode.String()),
			zap.Uint64("size", h.Length))
	}
	return nil
}

// Encode an unmasked server frame
func encode(h wsframe.Header, payload []byte) ([]byte, error) {
	frame := make([]byte, h.Len()+len(payload))
	n, err := wsframe.PutHeader(frame, h)
	if err != nil {
		return nil, err
	}
	copy(frame[n:], payload)
	return frame, nil
}
