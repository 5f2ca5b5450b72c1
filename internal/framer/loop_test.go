package framer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
	"github.com/hioload/fixgw/core/reattempt"
	"github.com/hioload/fixgw/fake"
	"github.com/hioload/fixgw/internal/reactor"
	"github.com/hioload/fixgw/internal/sender"
)

// fakeReactor is an in-memory reactor.Reactor test double: Wait blocks
// on an injectable events channel (falling back to the caller's
// timeout), and RegisterWritable counts how many times each connection
// has been armed so tests can assert on the one-shot-then-rearm cycle.
type fakeReactor struct {
	mu         sync.Mutex
	rearmCount map[uint64]int
	events     chan reactor.Event
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{rearmCount: make(map[uint64]int), events: make(chan reactor.Event, 8)}
}

func (r *fakeReactor) RegisterWritable(fd uintptr, connectionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rearmCount[connectionID]++
	return nil
}

func (r *fakeReactor) Wait(ready []reactor.Event, timeoutMs int) (int, error) {
	select {
	case ev := <-r.events:
		ready[0] = ev
		return 1, nil
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return 0, nil
	}
}

func (r *fakeReactor) Close() error { return nil }

func (r *fakeReactor) armedCount(connectionID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rearmCount[connectionID]
}

type stubReceiver struct {
	disconnects []api.DisconnectReason
}

func (r *stubReceiver) CompleteDisconnect(reason api.DisconnectReason) {
	r.disconnects = append(r.disconnects, reason)
}

func newTestEndpoint(t *testing.T, loop *Loop, connectionID uint64) (*sender.FixEndpoint, *fake.Channel) {
	t.Helper()
	channel := fake.NewChannel()
	base := sender.NewEndpoint(connectionID, 1, channel, fake.NewCounters(), fake.NewErrorSink(),
		loop, fake.NewPublisher(), zap.NewNop(), 1<<20, 10_000, 0)
	return sender.NewFixEndpoint(base, reattempt.NewPool(), nil, nil), channel
}

func TestDispatchRoutesToRegisteredEndpoint(t *testing.T) {
	loop := NewLoop(nil, zap.NewNop(), 10)
	fx, channel := newTestEndpoint(t, loop, 1)
	loop.AddEndpoint(1, 0, fx, &stubReceiver{})

	ok := loop.Dispatch(1, func(e *sender.FixEndpoint) {
		e.OnOutboundMessage(1, 1, 0, "D", 0, []byte("hi"), nil)
	})

	require.True(t, ok)
	require.Equal(t, []byte("hi"), channel.TotalWritten())
}

func TestDispatchToUnknownConnectionReturnsFalse(t *testing.T) {
	loop := NewLoop(nil, zap.NewNop(), 10)
	ok := loop.Dispatch(999, func(e *sender.FixEndpoint) {})
	require.False(t, ok)
}

func TestCompleteDisconnectRemovesFromTableAndNotifiesReceiver(t *testing.T) {
	loop := NewLoop(nil, zap.NewNop(), 10)
	fx, _ := newTestEndpoint(t, loop, 1)
	receiver := &stubReceiver{}
	loop.AddEndpoint(1, 0, fx, receiver)
	require.Equal(t, 1, loop.Len())

	loop.CompleteDisconnect(1, api.DisconnectAdmin)

	require.Equal(t, 0, loop.Len())
	require.Equal(t, []api.DisconnectReason{api.DisconnectAdmin}, receiver.disconnects)
	require.True(t, fx.IsClosed())
}

func TestTickPollsEveryRegisteredEndpoint(t *testing.T) {
	loop := NewLoop(nil, zap.NewNop(), 10)
	fx, channel := newTestEndpoint(t, loop, 1)
	channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) { return 0, nil }
	loop.AddEndpoint(1, 0, fx, &stubReceiver{})

	fx.OnOutboundMessage(1, 1, 0, "D", 0, []byte("backlogged"), nil)
	require.True(t, fx.RequiresRetry())

	loop.Tick(20_000)

	require.Equal(t, 0, loop.Len(), "slow consumer timeout during Tick must disconnect and drop the entry")
}

func TestRunDrainsBackloggedConnectionOnReactorReadinessEvent(t *testing.T) {
	fr := newFakeReactor()
	loop := NewLoop(fr, zap.NewNop(), 200)

	var blocked atomic.Bool
	blocked.Store(true)

	channel := fake.NewChannel()
	channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		if blocked.Load() {
			return 0, nil
		}
		return len(buf), nil
	}

	base := sender.NewEndpoint(1, 1, channel, fake.NewCounters(), fake.NewErrorSink(), loop,
		fake.NewPublisher(), zap.NewNop(), 1<<20, 60_000, 0)
	fx := sender.NewFixEndpoint(base, reattempt.NewPool(), nil, nil)

	loop.AddEndpoint(1, 42, fx, &stubReceiver{})
	require.Equal(t, 1, fr.armedCount(1), "AddEndpoint must arm write-readiness for the connection's fd")

	fx.OnOutboundMessage(1, 1, 0, "D", 0, []byte("backlogged"), nil)
	require.True(t, fx.RequiresRetry())

	go loop.Run(func() int64 { return 0 })
	defer loop.Stop()

	// First readiness event fires while the socket is still blocked:
	// Poll attempts the write, fails to make progress, and the
	// one-shot registration must be rearmed rather than left dead.
	fr.events <- reactor.Event{ConnectionID: 1}
	require.Eventually(t, func() bool { return fr.armedCount(1) >= 2 }, time.Second, time.Millisecond,
		"a still-backlogged connection must be rearmed after a readiness event")
	require.True(t, fx.RequiresRetry())

	// Second readiness event fires once the socket has actually become
	// writable: this time Poll must fully drain the backlog.
	blocked.Store(false)
	fr.events <- reactor.Event{ConnectionID: 1}
	require.Eventually(t, func() bool { return !fx.RequiresRetry() }, time.Second, time.Millisecond,
		"a readiness event on a writable socket must drain the reattempt buffer")
}
