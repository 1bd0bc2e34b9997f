// Package netio implements the non-blocking connection engine: the framed
// byte buffer, the per-connection state machine, and the epoll-based
// readiness loop that drives them.
package netio

// Buffer is an ordered byte sequence supporting append-at-tail and
// consume-from-head. It is the ingress/egress storage for a Connection; no
// partial slice it hands out survives the next mutation.
type Buffer struct {
	buf []byte
	// off is the index of the first live byte; bytes before off are dead
	// space reclaimed lazily instead of on every Consume.
	off int
}

// Len is the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Bytes returns the unconsumed bytes. The slice is only valid until the
// next call to Append or Consume.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// Append adds p to the tail of the buffer.
func (b *Buffer) Append(p []byte) {
	if b.off > 0 && b.off == len(b.buf) {
		// Buffer fully drained; reset instead of growing forever.
		b.buf = b.buf[:0]
		b.off = 0
	}
	b.buf = append(b.buf, p...)
}

// Consume removes the first n bytes. n must not exceed Len().
func (b *Buffer) Consume(n int) {
	b.off += n
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
		return
	}
	// Reclaim dead space once it dominates the buffer, so a connection that
	// alternates small reads and consumes doesn't grow unbounded.
	if b.off > 4096 && b.off*2 > len(b.buf) {
		remaining := copy(b.buf, b.buf[b.off:])
		b.buf = b.buf[:remaining]
		b.off = 0
	}
}
