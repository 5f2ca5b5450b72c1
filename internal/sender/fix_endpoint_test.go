package sender

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
	"github.com/hioload/fixgw/core/reattempt"
	"github.com/hioload/fixgw/fake"
)

type harness struct {
	fx        *FixEndpoint
	channel   *fake.Channel
	publisher *fake.Publisher
	timing    *fake.TimingSink
	errs      *fake.ErrorSink
	framer    *fake.Framer
	counters  *fake.Counters
	pool      *reattempt.Pool
}

func newHarness(t *testing.T, maxBytesInBuffer, slowConsumerTimeoutMs int64) *harness {
	t.Helper()
	h := &harness{
		channel:   fake.NewChannel(),
		publisher: fake.NewPublisher(),
		timing:    fake.NewTimingSink(),
		errs:      fake.NewErrorSink(),
		framer:    fake.NewFramer(),
		counters:  fake.NewCounters(),
		pool:      reattempt.NewPool(),
	}
	base := NewEndpoint(1, 7, h.channel, h.counters, h.errs, h.framer, h.publisher,
		zap.NewNop(), maxBytesInBuffer, slowConsumerTimeoutMs, 0)
	h.fx = NewFixEndpoint(base, h.pool, h.timing, nil)
	return h
}

func TestOnOutboundMessageWritesImmediatelyWhenChannelKeepsUp(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	body := []byte("35=D|11=abc|")
	meta := []byte("m1")

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, body, meta)

	require.Equal(t, body, h.channel.TotalWritten())
	require.False(t, h.fx.RequiresRetry())
	require.Len(t, h.timing.Msgs, 1)
	require.Equal(t, meta, h.timing.Msgs[0].Meta)
}

func TestInvalidLibraryIDIsCountedAndDropped(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.OnOutboundMessage(99, 1, 0, "D", 0, []byte("body"), nil)

	require.Empty(t, h.channel.Written)
	require.Equal(t, 1, h.counters.InvalidLibraryAttempts[1])
}

func TestPartialWriteBuffersRemainderAndMarksRequiresRetry(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	body := []byte("0123456789")
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		return 4, nil
	}

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, body, nil)

	require.True(t, h.fx.RequiresRetry())
	require.NotEmpty(t, h.counters.SlowStatusCalls)
	require.True(t, h.counters.SlowStatusCalls[0])
	require.Empty(t, h.timing.Msgs, "timing sink must not fire until the message fully flushes")
}

func TestReattemptDrainsBufferedFrameOnceChannelCatchesUp(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	body := []byte("0123456789")
	blocked := true
	var accepted []byte
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		if blocked {
			return 0, nil
		}
		accepted = append(accepted, buf...)
		return len(buf), nil
	}

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, body, []byte("meta"))
	require.True(t, h.fx.RequiresRetry())

	blocked = false
	h.fx.Poll(1)

	require.False(t, h.fx.RequiresRetry())
	require.Equal(t, body, accepted)
	require.Len(t, h.timing.Msgs, 1)
}

func TestBufferOverflowDisconnectsSlowConsumer(t *testing.T) {
	h := newHarness(t, 8, 10_000)
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		return 0, nil
	}

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, []byte("this message is far longer than the threshold"), nil)

	require.Equal(t, 1, h.framer.DisconnectCount())
	require.Equal(t, api.DisconnectSlowConsumer, h.framer.Disconnects[0].Reason)
	require.True(t, h.fx.IsClosed())
}

func TestWriteErrorDisconnectsWithExceptionReasonAndReportsError(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	boom := errors.New("connection reset")
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		return 0, boom
	}

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, []byte("body"), nil)

	require.Equal(t, 1, h.framer.DisconnectCount())
	require.Equal(t, api.DisconnectException, h.framer.Disconnects[0].Reason)
	require.Len(t, h.errs.Errors, 1)
}

func TestClosedEndpointIgnoresFurtherSubmissions(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.Close()

	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, []byte("late"), nil)

	require.Empty(t, h.channel.Written)
}

func TestStartReplayBeginsImmediatelyWhenIdle(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.OnStartReplay(55)
	require.True(t, h.fx.IsReplaying())
	require.Empty(t, h.channel.Written, "start-replay is a pure state transition, not itself a frame")
}

func TestReplayMessageInterleavesAheadOfNormalStream(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.OnStartReplay(1)

	h.fx.OnReplayMessage([]byte("replayed"), 0, 3)
	require.Equal(t, []byte("replayed"), h.channel.TotalWritten())
	require.True(t, h.channel.ReplayFlags[0])

	h.fx.OnOutboundMessage(7, 4, 0, "D", 0, []byte("live"), nil)
	require.Equal(t, []byte("replayed"), h.channel.TotalWritten(),
		"live message during an active replay must be enqueued onto the normal buffer, not written")
	require.False(t, h.fx.RequiresRetry(),
		"requires_retry tracks only the active (replay) stream; buffering onto the inactive normal "+
			"stream doesn't flip it until stream alternation makes that buffer active")
}

func TestReplayCompleteEndsReplayAndNotifiesChannel(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.OnStartReplay(9)
	h.fx.OnReplayMessage([]byte("r1"), 0, 1)

	action := h.fx.OnReplayComplete(9)

	require.Equal(t, api.ActionContinue, action)
	require.False(t, h.fx.IsReplaying())
	require.Contains(t, h.channel.ReplayCompletions, int64(9))
}

func TestReplayCompleteBackpressureFromPublisherDefersHandshake(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.publisher.Action = api.ActionAbort
	h.fx.OnStartReplay(9)

	last := h.fx.OnReplayMessage([]byte("last"), 0, reattempt.NotLastReplayMsg+1)
	require.Equal(t, api.ActionContinue, last)

	action := h.fx.OnReplayComplete(9)
	require.Equal(t, api.ActionContinue, action)
	require.True(t, h.fx.IsReplaying(), "back-pressured completion must not flip replaying off yet")
}

func TestThrottleRejectDropsSilentlyWithoutFactory(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.fx.OnThrottleReject(7, "D", 1, 2, 0, []byte("ref"), 0)

	require.Empty(t, h.channel.Written)
	require.False(t, h.fx.IsClosed())
}

func TestConfigureThrottleFailsWithoutFactory(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	require.False(t, h.fx.ConfigureThrottle(1000, 5))
}

func TestSlowConsumerTimeoutDisconnectsOnPoll(t *testing.T) {
	h := newHarness(t, 1<<20, 100)
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		return 0, nil
	}
	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, []byte("stalled"), nil)

	disconnected := h.fx.Poll(500)

	require.True(t, disconnected)
	require.Equal(t, 1, h.framer.DisconnectCount())
	require.Equal(t, api.DisconnectSlowConsumer, h.framer.Disconnects[0].Reason)
}

func TestCloseReleasesBuffersBackToPool(t *testing.T) {
	h := newHarness(t, 1<<20, 10_000)
	h.channel.WriteFunc = func(buf []byte, seq int32, replay bool) (int, error) {
		return 0, nil
	}
	h.fx.OnOutboundMessage(7, 1, 0, "D", 0, []byte("buffered"), nil)

	h.fx.Close()

	reused := h.pool.Get()
	require.Equal(t, 0, reused.Usage())
}
