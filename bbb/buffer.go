package bbb

// Buffer is a linear byte queue with read and write cursors. Bytes are
// appended at wpos and consumed at rpos; when a write runs out of room at
// the tail, the unread bytes are shifted back to the front instead of
// growing the backing array. This keeps the
// transport's per-transfer working set on a single fixed allocation.
type Buffer struct {
	data []byte
	rpos int
	wpos int
}

// NewBuffer wraps buf as the backing store for a Buffer. The caller
// retains ownership; buf is not copied.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{data: buf}
}

// Len returns the capacity of the backing array.
func (b *Buffer) Len() int {
	return len(b.data)
}

// AvailableRead returns the number of unread bytes.
func (b *Buffer) AvailableRead() int {
	return b.wpos - b.rpos
}

// AvailableWrite returns the number of bytes that can be appended
// before the buffer must shift or reject the write.
func (b *Buffer) AvailableWrite() int {
	return len(b.data) - b.wpos
}

// Clean resets both cursors to zero, discarding all unread data.
func (b *Buffer) Clean() {
	b.rpos = 0
	b.wpos = 0
}

// shift moves the unread region to the front of the backing array,
// making room at the tail for further writes.
func (b *Buffer) shift() {
	if b.rpos == b.wpos {
		b.Clean()
		return
	}
	n := copy(b.data, b.data[b.rpos:b.wpos])
	b.rpos = 0
	b.wpos = n
}

// Write appends as much of data as fits, shifting first if the tail
// has less room than len(data). It returns the number of bytes
// actually copied.
func (b *Buffer) Write(data []byte) int {
	if b.AvailableWrite() < len(data) {
		b.shift()
	}
	n := copy(b.data[b.wpos:], data)
	b.wpos += n
	return n
}

// WriteAll hands the writable tail of the buffer to fill, which must
// return the number of bytes it wrote into that slice (at most
// maxCount). WriteAll shifts first if necessary, and fails with
// ErrIOBufferOverflow if there still isn't room for maxCount bytes
// after shifting.
func (b *Buffer) WriteAll(maxCount int, fill func([]byte) int) (int, error) {
	if b.AvailableWrite() < maxCount {
		b.shift()
	}
	if b.AvailableWrite() < maxCount {
		return 0, ErrIOBufferOverflow
	}
	n := fill(b.data[b.wpos : b.wpos+maxCount])
	if n > maxCount {
		n = maxCount
	}
	b.wpos += n
	return n, nil
}

// Read hands the unread region of the buffer to drain, which must
// return the number of bytes it consumed from the front of that
// slice. The read cursor advances by that amount.
func (b *Buffer) Read(drain func([]byte) int) int {
	n := drain(b.data[b.rpos:b.wpos])
	avail := b.AvailableRead()
	if n > avail {
		n = avail
	}
	b.rpos += n
	return n
}
