package wsframe

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// Returned by header encoding and parsing when the opcode is not a defined one.
	ErrInvalidOpcode = errors.New("wsframe: invalid opcode")
	// Returned when a control frame is fragmented or carries more than 125 bytes.
	ErrInvalidControlFrame = errors.New("wsframe: invalid control frame format")
	// Returned when the destination slice cannot hold the header.
	ErrShortBuffer = errors.New("wsframe: buffer too short for frame header")
	// Returned when a 64 bits extended payload length has its most significant bit set.
	ErrInvalidLength = errors.New("wsframe: invalid payload length")
)

// Decoded or to-be-encoded frame header.
type Header struct {
	// Final fragment
	Fin bool
	// Frame opcode
	Opcode Opcode
	// Whether payload is masked. Mask is only meaningful when Masked is true.
	Masked bool
	// Payload length
	Length uint64
	// Masking key
	Mask [4]byte
}

// Flags returns the flags word of the header.
func (h Header) Flags() Flags {
	return NewFlags(h.Opcode, h.Fin)
}

// # Description
//
// Check the header complies with RFC6455 rules enforced by this package.
//
// # Returns
//
//   - ErrInvalidOpcode if the opcode is not one of the six defined opcodes.
//   - ErrInvalidControlFrame if a control frame is fragmented or its payload exceeds 125 bytes.
//   - ErrInvalidLength if the payload length exceeds MaxPayloadLen.
//   - nil otherwise.
func (h Header) Validate() error {
	if h.Length > MaxPayloadLen {
		return fmt.Errorf("%w: %d", ErrInvalidLength, h.Length)
	}
	if !h.Opcode.Valid() {
		return fmt.Errorf("%w: 0x%x", ErrInvalidOpcode, byte(h.Opcode))
	}
	if h.Opcode.IsControl() && (!h.Fin || h.Length > MaxControlPayloadLen) {
		return fmt.Errorf("%w: opcode=%s fin=%t length=%d", ErrInvalidControlFrame, h.Opcode, h.Fin, h.Length)
	}
	return nil
}

// Len returns the encoded length of the header (2 to 14 bytes).
func (h Header) Len() int {
	n := MinHeaderLen
	switch {
	case h.Length >= 1<<16:
		n += 8
	case h.Length >= len16:
		n += 2
	}
	if h.Masked {
		n += 4
	}
	return n
}

// # Description
//
// Encode the header in dst using the minimal length encoding: literal length below 126, 126
// followed by a 16 bits big-endian length below 65536 and 127 followed by a 64 bits big-endian
// length otherwise. The masking key is appended when the header is masked.
//
// The header is not validated: use Validate first.
//
// # Returns
//
// The number of bytes written or ErrShortBuffer if dst cannot hold the header.
func PutHeader(dst []byte, h Header) (int, error) {
	n := h.Len()
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	dst[0] = byte(h.Opcode) & 0x0F
	if h.Fin {
		dst[0] |= finBit
	}
	var mask byte
	if h.Masked {
		mask = maskBit
	}
	offset := 2
	switch {
	case h.Length >= 1<<16:
		dst[1] = mask | len64
		binary.BigEndian.PutUint64(dst[offset:], h.Length)
		offset += 8
	case h.Length >= len16:
		dst[1] = mask | len16
		binary.BigEndian.PutUint16(dst[offset:], uint16(h.Length))
		offset += 2
	default:
		dst[1] = mask | byte(h.Length)
	}
	if h.Masked {
		copy(dst[offset:], h.Mask[:])
	}
	return n, nil
}

// # Description
//
// Compute the full length of a header from its first two bytes: 2, 4 or 10 bytes depending on
// the length field, plus 4 bytes when the mask bit is set.
//
// # Inputs
//
//   - b: At least the first two bytes of the header.
func HeaderLen(b []byte) int {
	n := MinHeaderLen
	switch b[1] & 0x7F {
	case len16:
		n += 2
	case len64:
		n += 8
	}
	if b[1]&maskBit != 0 {
		n += 4
	}
	return n
}

// # Description
//
// Parse a complete header. b must hold at least HeaderLen(b) bytes.
//
// # Returns
//
// The decoded header and the number of bytes it spans. The header is validated: an invalid
// opcode or control frame format is reported with ErrInvalidOpcode or ErrInvalidControlFrame
// and a 64 bits length with its most significant bit set is reported with ErrInvalidLength.
func ParseHeader(b []byte) (Header, int, error) {
	if len(b) < MinHeaderLen || len(b) < HeaderLen(b) {
		return Header{}, 0, ErrShortBuffer
	}
	h := Header{
		Fin:    b[0]&finBit != 0,
		Opcode: Opcode(b[0] & 0x0F),
		Masked: b[1]&maskBit != 0,
		Length: uint64(b[1] & 0x7F),
	}
	offset := 2
	switch h.Length {
	case len16:
		h.Length = uint64(binary.BigEndian.Uint16(b[offset:]))
		offset += 2
	case len64:
		// Most significant bit must be 0, checked by Validate
		h.Length = binary.BigEndian.Uint64(b[offset:])
		offset += 8
	}
	if h.Masked {
		copy(h.Mask[:], b[offset:offset+4])
		offset += 4
	}
	return h, offset, h.Validate()
}

// # Description
//
// XOR each byte of b with key[(pos+i) mod 4] in place. pos is the offset of b[0] in the frame
// payload, which allows masking a payload in several chunks.
//
// # Returns
//
// The position to use for the next chunk.
func Mask(key [4]byte, pos int, b []byte) int {
	for i := range b {
		b[i] ^= key[(pos+i)&3]
	}
	return (pos + len(b)) & 3
}

// ComputeAcceptKey returns the Sec-WebSocket-Accept value expected for a Sec-WebSocket-Key.
func ComputeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(AcceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ClosePayload builds the payload of a close frame: 2 bytes big-endian status code followed by
// the reason truncated so that the payload fits in a control frame.
func ClosePayload(code StatusCode, reason string) []byte {
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return payload
}
