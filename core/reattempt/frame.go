// File: core/reattempt/frame.go
// Tagged-frame codec for the reattempt arena. Mirrors the layout in
// spec.md section 3 ("Frame kinds inside a reattempt buffer"):
//
//	ENQ_MSG              tag:i32 | seq:i32 | bodyLen:i32 | body[bodyLen] | metaLen:i32 | meta[metaLen]
//	ENQ_REPLAY_COMPLETE  tag:i32 | correlationId:i64
//	ENQ_START_REPLAY     tag:i32 | correlationId:i64
//
// Integers are little-endian; spec.md leaves the wire endianness
// unspecified (see DESIGN.md).
package reattempt

import "encoding/binary"

// Frame tags, matching spec.md section 3.
const (
	TagEnqMsg            int32 = 1
	TagEnqReplayComplete int32 = 2
	TagEnqStartReplay    int32 = 3
)

// NotLastReplayMsg marks a buffered replay frame whose sequence number
// has been overwritten to suppress a duplicate replay-complete signal
// on a subsequent retry of that same frame.
const NotLastReplayMsg int32 = 0

const (
	int32Len = 4
	int64Len = 8

	// CorrelationFrameLen is the fixed length of both
	// ENQ_REPLAY_COMPLETE and ENQ_START_REPLAY records: tag + correlationId.
	CorrelationFrameLen = int32Len + int64Len

	// msgHeaderLen is tag + seq + bodyLen, the fixed prefix of ENQ_MSG
	// before the variable-length body.
	msgHeaderLen = int32Len + int32Len + int32Len
)

func readInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func readInt64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

func putInt32(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func putInt64(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b, uint64(v))
}

// EnqMsgLen returns the total on-arena length of an ENQ_MSG frame with
// the given body and metadata lengths.
func EnqMsgLen(bodyLen, metaLen int) int {
	return msgHeaderLen + bodyLen + int32Len + metaLen
}

// AppendMsg writes an ENQ_MSG frame into the arena.
func (b *Buffer) AppendMsg(seq int32, body, meta []byte) {
	total := EnqMsgLen(len(body), len(meta))
	region := b.ReserveAppend(total)
	off := 0
	putInt32(region[off:], TagEnqMsg)
	off += int32Len
	putInt32(region[off:], seq)
	off += int32Len
	putInt32(region[off:], int32(len(body)))
	off += int32Len
	copy(region[off:], body)
	off += len(body)
	putInt32(region[off:], int32(len(meta)))
	off += int32Len
	copy(region[off:], meta)
}

// AppendReplayComplete writes an ENQ_REPLAY_COMPLETE frame.
func (b *Buffer) AppendReplayComplete(correlationID int64) {
	b.appendCorrelation(TagEnqReplayComplete, correlationID)
}

// AppendStartReplay writes an ENQ_START_REPLAY frame.
func (b *Buffer) AppendStartReplay(correlationID int64) {
	b.appendCorrelation(TagEnqStartReplay, correlationID)
}

func (b *Buffer) appendCorrelation(tag int32, correlationID int64) {
	region := b.ReserveAppend(CorrelationFrameLen)
	putInt32(region[0:], tag)
	putInt64(region[int32Len:], correlationID)
}

// MsgHeader decodes the fixed-length prefix of an ENQ_MSG frame at
// offset, returning the sequence number, body length, and the offset at
// which the body begins.
func (b *Buffer) MsgHeader(offset int) (seq int32, bodyLen int32, bodyOffset int) {
	seq = b.ReadInt32(offset + int32Len)
	bodyLen = b.ReadInt32(offset + int32Len + int32Len)
	bodyOffset = offset + msgHeaderLen
	return
}

// MsgMeta decodes the metadata length and offset following a message
// body that ends at bodyOffset+bodyLen.
func (b *Buffer) MsgMeta(bodyOffset int, bodyLen int32) (metaLen int32, metaOffset int) {
	metaLenOffset := bodyOffset + int(bodyLen)
	metaLen = b.ReadInt32(metaLenOffset)
	metaOffset = metaLenOffset + int32Len
	return
}

// Tag reads the leading frame tag at offset. Callers must ensure
// offset+4 <= Usage.
func (b *Buffer) Tag(offset int) int32 {
	return b.ReadInt32(offset)
}

// HasBytesAt reports whether at least n bytes are available starting at
// offset, i.e. whether offset+n <= Usage. Used to bounds-check the
// ENQ_START_REPLAY peek after an ENQ_REPLAY_COMPLETE marker: per
// DESIGN.md's Open Question resolution, running off the end of the
// buffered region means "no further bytes", i.e. burst-end.
func (b *Buffer) HasBytesAt(offset, n int) bool {
	return offset+n <= b.usage
}

// MsgFrameLen returns the total in-arena length of the ENQ_MSG frame
// starting at offset (used to advance the walk past a fully-processed
// frame).
func (b *Buffer) MsgFrameLen(offset int) int {
	_, bodyLen, bodyOffset := b.MsgHeader(offset)
	metaLen, _ := b.MsgMeta(bodyOffset, bodyLen)
	return (bodyOffset - offset) + int(bodyLen) + int32Len + int(metaLen)
}
