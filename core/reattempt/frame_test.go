package reattempt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndDecodeMsgFrame(t *testing.T) {
	var b Buffer
	body := []byte("35=D|49=SENDER|56=TARGET|")
	meta := []byte("meta-blob")

	b.AppendMsg(7, body, meta)

	require.Equal(t, TagEnqMsg, b.Tag(0))
	seq, bodyLen, bodyOffset := b.MsgHeader(0)
	require.EqualValues(t, 7, seq)
	require.EqualValues(t, len(body), bodyLen)
	require.Equal(t, body, b.Bytes()[bodyOffset:bodyOffset+int(bodyLen)])

	metaLen, metaOffset := b.MsgMeta(bodyOffset, bodyLen)
	require.EqualValues(t, len(meta), metaLen)
	require.Equal(t, meta, b.Bytes()[metaOffset:metaOffset+int(metaLen)])

	require.Equal(t, b.Usage(), b.MsgFrameLen(0))
}

func TestAppendReplayCompleteAndStartReplay(t *testing.T) {
	var b Buffer
	b.AppendReplayComplete(42)
	require.Equal(t, TagEnqReplayComplete, b.Tag(0))
	require.EqualValues(t, 42, b.ReadInt64(4))
	require.Equal(t, CorrelationFrameLen, b.Usage())

	b.AppendStartReplay(43)
	require.Equal(t, TagEnqStartReplay, b.Tag(CorrelationFrameLen))
	require.EqualValues(t, 43, b.ReadInt64(CorrelationFrameLen+4))
}

func TestHasBytesAtBoundary(t *testing.T) {
	var b Buffer
	b.AppendReplayComplete(1)
	end := CorrelationFrameLen

	require.False(t, b.HasBytesAt(end, 4), "no further bytes buffered means burst-end, not a read past usage")

	b.AppendStartReplay(1)
	require.True(t, b.HasBytesAt(end, 4))
	require.Equal(t, TagEnqStartReplay, b.Tag(end))
}

func TestPutInt32RewritesSeqToSuppressDuplicateCompletion(t *testing.T) {
	var b Buffer
	b.AppendMsg(99, []byte("x"), nil)
	seqOffset := 4
	b.PutInt32(seqOffset, NotLastReplayMsg)

	seq, _, _ := b.MsgHeader(0)
	require.EqualValues(t, NotLastReplayMsg, seq)
}
