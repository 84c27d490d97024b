// Package wsframe implements the RFC6455 frame wire format used by the websocket node: opcodes,
// the flags word exchanged through node arguments, frame header encoding and decoding and
// payload masking.
package wsframe

/*************************************************************************************************/
/* OPCODES                                                                                       */
/*************************************************************************************************/

// Frame opcode (4 bits).
//
// https://www.rfc-editor.org/rfc/rfc6455#section-5.2
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// Valid returns true if the opcode is one of the six defined opcodes.
func (op Opcode) Valid() bool {
	switch op {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	default:
		return false
	}
}

// IsControl returns true for close, ping and pong opcodes.
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

func (op Opcode) String() string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "unknown"
	}
}

/*************************************************************************************************/
/* FLAGS                                                                                         */
/*************************************************************************************************/

// Flags word describing a frame: opcode in the 4 low bits and FlagFin.
type Flags uint32

const (
	// Mask used to extract the opcode from a Flags word
	FlagOpcodeMask Flags = 0x0F
	// Final fragment flag
	FlagFin Flags = 0x10
	// Flags used by default to send a frame: a single final binary frame (0x12).
	DefaultFlags = Flags(OpcodeBinary) | FlagFin
)

// NewFlags builds a flags word from an opcode and a fin bit.
func NewFlags(op Opcode, fin bool) Flags {
	flags := Flags(op) & FlagOpcodeMask
	if fin {
		flags |= FlagFin
	}
	return flags
}

// Opcode extracts the frame opcode.
func (f Flags) Opcode() Opcode {
	return Opcode(f & FlagOpcodeMask)
}

// Fin returns true when the final fragment flag is set.
func (f Flags) Fin() bool {
	return f&FlagFin != 0
}

/*************************************************************************************************/
/* WIRE CONSTANTS                                                                                */
/*************************************************************************************************/

const (
	// Maximum payload length of control frames
	MaxControlPayloadLen = 125
	// Maximum header length: 2 base bytes, 8 extended length bytes and 4 masking key bytes
	MaxHeaderLen = 14
	// Minimum header length
	MinHeaderLen = 2
	// Maximum payload length which can be encoded (63 bits)
	MaxPayloadLen = uint64(1<<63 - 1)

	finBit  = 0x80
	maskBit = 0x80
	// Length field values announcing 16 bits and 64 bits extended lengths
	len16 = 126
	len64 = 127
)

// GUID appended to Sec-WebSocket-Key to compute Sec-WebSocket-Accept.
const AcceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

/*************************************************************************************************/
/* CLOSE STATUS CODES                                                                            */
/*************************************************************************************************/

// Constants for RFC6455 defined close status codes
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
type StatusCode uint16

const (
	NormalClosure           StatusCode = 1000
	GoingAway               StatusCode = 1001
	ProtocolError           StatusCode = 1002
	UnsupportedData         StatusCode = 1003
	NoStatusReceived        StatusCode = 1005
	AbnormalClosure         StatusCode = 1006
	InvalidFramePayloadData StatusCode = 1007
	PolicyViolation         StatusCode = 1008
	MessageTooBig           StatusCode = 1009
	MandatoryExtension      StatusCode = 1010
	InternalError           StatusCode = 1011
	TLSHandshake            StatusCode = 1015
)
