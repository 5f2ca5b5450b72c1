// Package reattempt implements the growable byte arena used to buffer
// frames awaiting retry on a slow or backlogged stream, plus the
// tagged-frame codec that gives that arena structure.
//
// A Buffer is lazily allocated: the zero value is ready to use and does
// not touch the heap until the first ReserveAppend call, matching the
// happy path where a fast consumer never needs retry buffering at all.
package reattempt

// Buffer is a growable arena holding a run of well-formed frames in
// bytes [0, Usage). It is not safe for concurrent use; callers (the
// FixEndpoint's owning framer goroutine) serialize all access.
type Buffer struct {
	data  []byte
	usage int
}

// Usage reports the number of valid bytes currently held, bytes
// [0, Usage) being a concatenation of well-formed frames.
func (b *Buffer) Usage() int {
	return b.usage
}

// Cap reports the arena's current backing capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Bytes returns the valid region as a slice. The slice aliases the
// arena's backing array and is invalidated by the next ReserveAppend or
// Shuffle call.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.usage]
}

// ReserveAppend grows the arena if necessary and returns a slice at
// offset Usage of length n, then advances Usage by n. The caller fills
// the returned slice with the frame's bytes.
func (b *Buffer) ReserveAppend(n int) []byte {
	needed := b.usage + n
	if cap(b.data) < needed {
		grown := make([]byte, needed, growCapacity(cap(b.data), needed))
		copy(grown, b.data[:b.usage])
		b.data = grown
	} else if len(b.data) < needed {
		b.data = b.data[:needed]
	}
	region := b.data[b.usage:needed]
	b.usage = needed
	return region
}

// growCapacity doubles from the current capacity (256 bytes for a first
// allocation) until it can hold needed, matching the amortized-growth idiom used throughout the pack
// for append-heavy buffers.
func growCapacity(current, needed int) int {
	if current == 0 {
		current = 256
	}
	for current < needed {
		current *= 2
	}
	return current
}

// Shuffle compacts the arena by discarding the first `written` bytes,
// moving [written, Usage) down to offset 0. written == 0 is a no-op.
// Precondition: 0 <= written <= Usage.
func (b *Buffer) Shuffle(written int) int {
	if written <= 0 {
		return b.usage
	}
	remaining := b.usage - written
	copy(b.data[:remaining], b.data[written:b.usage])
	b.usage = remaining
	return remaining
}

// ReadInt32 reads a little-endian int32 at offset.
func (b *Buffer) ReadInt32(offset int) int32 {
	return readInt32(b.data[offset : offset+4])
}

// ReadInt64 reads a little-endian int64 at offset.
func (b *Buffer) ReadInt64(offset int) int64 {
	return readInt64(b.data[offset : offset+8])
}

// PutInt32 overwrites a little-endian int32 at offset. Used to rewrite
// a buffered replay frame's sequence number to NotLastReplayMsg so a
// retried drain doesn't double-signal replay-complete.
func (b *Buffer) PutInt32(offset int, v int32) {
	putInt32(b.data[offset:offset+4], v)
}

// Reset drops all buffered bytes without releasing the backing array,
// so a pooled Buffer can be handed to the next connection.
func (b *Buffer) Reset() {
	b.usage = 0
}
