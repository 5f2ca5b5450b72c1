package reattempt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferLazyAllocation(t *testing.T) {
	var b Buffer
	require.Equal(t, 0, b.Usage())
	require.Equal(t, 0, b.Cap())
}

func TestReserveAppendGrows(t *testing.T) {
	var b Buffer
	region := b.ReserveAppend(10)
	require.Len(t, region, 10)
	require.Equal(t, 10, b.Usage())

	copy(region, []byte("0123456789"))
	require.Equal(t, []byte("0123456789"), b.Bytes())

	more := b.ReserveAppend(5)
	require.Len(t, more, 5)
	require.Equal(t, 15, b.Usage())
}

func TestShuffleCompactsAndReportsNewUsage(t *testing.T) {
	var b Buffer
	region := b.ReserveAppend(10)
	copy(region, []byte("ABCDEFGHIJ"))

	newUsage := b.Shuffle(4)
	require.Equal(t, 6, newUsage)
	require.Equal(t, []byte("EFGHIJ"), b.Bytes())
}

func TestShuffleZeroIsNoop(t *testing.T) {
	var b Buffer
	region := b.ReserveAppend(4)
	copy(region, []byte("WXYZ"))

	newUsage := b.Shuffle(0)
	require.Equal(t, 4, newUsage)
	require.Equal(t, []byte("WXYZ"), b.Bytes())
}

func TestResetClearsUsageKeepsCapacity(t *testing.T) {
	var b Buffer
	b.ReserveAppend(64)
	cp := b.Cap()

	b.Reset()
	require.Equal(t, 0, b.Usage())
	require.Equal(t, cp, b.Cap())
}

func TestPoolReusesReleasedBuffers(t *testing.T) {
	p := NewPool()
	b1 := p.Get()
	b1.ReserveAppend(32)
	p.Put(b1)

	b2 := p.Get()
	require.Same(t, b1, b2)
	require.Equal(t, 0, b2.Usage())
	require.Equal(t, 32, b2.Cap())
}
