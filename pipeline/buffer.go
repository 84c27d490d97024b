package pipeline

// Fixed capacity byte window with independent read (begin) and write (end) cursors. Buffers are
// the unit of data exchange between adjacent nodes of a chain.
//
// The caller owns the backing storage: a Buffer never reallocates and nodes only borrow it for
// the duration of one call.
//
// Invariant: 0 <= begin <= end <= capacity.
type Buffer struct {
	// Backing storage. Capacity is len(data).
	data []byte
	// Offset of the first unread byte
	begin int
	// Offset of the first free byte
	end int
}

// # Description
//
// Factory which creates a new, empty Buffer over the provided storage. The storage is used as
// is: its length is the buffer capacity.
//
// # Inputs
//
//   - storage: Backing storage. Can be nil, in which case buffer has no capacity.
//
// # Returns
//
// A new empty Buffer.
func NewBuffer(storage []byte) *Buffer {
	return &Buffer{data: storage}
}

// Capacity returns the size of the backing storage.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Size returns the number of unread bytes (end - begin).
func (b *Buffer) Size() int {
	return b.end - b.begin
}

// Space returns the number of free bytes which can still be written (capacity - end).
func (b *Buffer) Space() int {
	return len(b.data) - b.end
}

// Empty returns true when there are no unread bytes.
func (b *Buffer) Empty() bool {
	return b.end == b.begin
}

// Full returns true when no more bytes can be written.
func (b *Buffer) Full() bool {
	return b.end == len(b.data)
}

// # Description
//
// Mark n unread bytes as consumed (sent or read by the consumer) by advancing begin.
//
// # Returns
//
// False if n is negative or greater than Size. Cursors are left untouched in that case.
func (b *Buffer) Consume(n int) bool {
	if n < 0 || n > b.Size() {
		return false
	}
	b.begin += n
	return true
}

// # Description
//
// Mark n free bytes as freshly written (received) by advancing end.
//
// # Returns
//
// False if n is negative or greater than Space. Cursors are left untouched in that case.
func (b *Buffer) Obtain(n int) bool {
	if n < 0 || n > b.Space() {
		return false
	}
	b.end += n
	return true
}

// Clear resets both cursors to zero.
func (b *Buffer) Clear() {
	b.begin = 0
	b.end = 0
}

// Bytes returns the live window of unread bytes. The slice must not be retained past the next
// call that mutates the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[b.begin:b.end]
}

// Free returns the writable tail of the buffer. Bytes written in the slice only become part of
// the buffer content once Obtain is called.
func (b *Buffer) Free() []byte {
	return b.data[b.end:]
}

// # Description
//
// Return a zero-copy view over at most n free bytes of the buffer. The view can be handed to a
// lower node which fills it. The owner then calls Obtain(view.Size()) to make the written bytes
// part of its own content.
//
// n is clamped to [0, Space()].
func (b *Buffer) Tail(n int) *Buffer {
	if n < 0 {
		n = 0
	}
	if n > b.Space() {
		n = b.Space()
	}
	return &Buffer{data: b.data[b.end : b.end+n : b.end+n]}
}

// Append copies as many bytes of p as fit in the free space, obtains them and returns the number
// of copied bytes.
func (b *Buffer) Append(p []byte) int {
	n := copy(b.data[b.end:], p)
	b.end += n
	return n
}

// Compact moves unread bytes to the front of the storage so that the whole free space is
// available again.
func (b *Buffer) Compact() {
	if b.begin == 0 {
		return
	}
	n := copy(b.data, b.data[b.begin:b.end])
	b.begin = 0
	b.end = n
}
