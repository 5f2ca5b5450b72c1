// Package sender implements the per-connection sender endpoint: the
// component that multiplexes normal and replay outbound streams onto a
// single non-blocking TCP socket. Endpoint is the shared scaffolding
// (socket ownership, slow-consumer timeout, counters); FixEndpoint,
// in fix_endpoint.go, is the FIX-specific multiplexer built on top of it.
package sender

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
)

// Endpoint is the shared contract every sender-endpoint variant (FIX,
// and eventually a FIXP sibling) is built on: it owns the socket, the
// slow-consumer watchdog, and the externally-published counters. It
// holds no stream-multiplexing state of its own — that's FixEndpoint's
// job — matching how the reference implementation splits an abstract
// SenderEndPoint from its FixSenderEndPoint/FixPSenderEndPoint
// specializations (spec.md section 9's "abstract sender hierarchy").
type Endpoint struct {
	ConnectionID uint64
	LibraryID    int32

	channel   api.TcpChannel
	counters  api.Counters
	errors    api.ErrorSink
	framer    api.Framer
	publisher api.InboundPublisher
	log       *zap.Logger

	maxBytesInBuffer      int64
	slowConsumerTimeoutMs int64

	bytesInBuffer            atomic.Int64
	sendingTimeoutDeadlineMs atomic.Int64
	closed                   atomic.Bool
}

// NewEndpoint constructs the shared scaffolding for a new connection.
// nowMs seeds the initial slow-consumer deadline so a connection that
// never writes successfully still gets slowConsumerTimeoutMs of grace
// before its first backlog is judged stalled.
func NewEndpoint(
	connectionID uint64,
	libraryID int32,
	channel api.TcpChannel,
	counters api.Counters,
	errors api.ErrorSink,
	framer api.Framer,
	publisher api.InboundPublisher,
	log *zap.Logger,
	maxBytesInBuffer int64,
	slowConsumerTimeoutMs int64,
	nowMs int64,
) *Endpoint {
	e := &Endpoint{
		ConnectionID:          connectionID,
		LibraryID:             libraryID,
		channel:               channel,
		counters:              counters,
		errors:                errors,
		framer:                framer,
		publisher:             publisher,
		log:                   log,
		maxBytesInBuffer:      maxBytesInBuffer,
		slowConsumerTimeoutMs: slowConsumerTimeoutMs,
	}
	e.sendingTimeoutDeadlineMs.Store(nowMs + slowConsumerTimeoutMs)
	return e
}

// IsSlowConsumer weakly observes whether the active stream currently
// has buffered, unflushed bytes.
func (e *Endpoint) IsSlowConsumer() bool {
	return e.bytesInBuffer.Load() > 0
}

// publishBytesInBuffer is the single point of truth for the
// bytes_in_buffer counter: an atomic store here is the "release-store"
// spec.md section 5 requires, since Go's atomic package already gives
// sequentially-consistent ordering to Load/Store pairs across
// goroutines — no extra fence type is needed.
func (e *Endpoint) publishBytesInBuffer(n int64) {
	e.bytesInBuffer.Store(n)
	e.counters.SetBytesInBuffer(e.ConnectionID, n)
}

// SendSlowStatus publishes a slow/not-slow transition. Callers (only
// FixEndpoint, only at requiresRetry transitions) are responsible for
// the "no two consecutive calls carry the same value" invariant —
// Endpoint does not itself dedupe, matching the reference base class.
func (e *Endpoint) SendSlowStatus(hasBecomeSlow bool) {
	e.counters.OnSlowStatus(e.ConnectionID, hasBecomeSlow)
}

// refreshSendingDeadline extends the slow-consumer timeout after any
// successful write, per spec.md section 4.C's slow-consumer policy.
func (e *Endpoint) refreshSendingDeadline(nowMs int64) {
	e.sendingTimeoutDeadlineMs.Store(nowMs + e.slowConsumerTimeoutMs)
}

// checkTimeout returns true iff the endpoint is slow and its watchdog
// deadline has passed, in which case the caller must disconnect.
func (e *Endpoint) checkTimeout(nowMs int64) bool {
	return e.IsSlowConsumer() && nowMs > e.sendingTimeoutDeadlineMs.Load()
}

// disconnect routes a coordinated teardown through the framer. Once
// closed, an endpoint ignores further disconnect requests (it may have
// already been removed from the framer's table).
func (e *Endpoint) disconnect(reason api.DisconnectReason) {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.counters.OnDisconnect(e.ConnectionID, reason)
	e.framer.CompleteDisconnect(e.ConnectionID, reason)
}

// publishReplayComplete forwards a replay-complete signal to the shared
// inbound bus, returning whether the publisher accepted it or
// back-pressured (ActionAbort). This is the base contract's half of
// on_replay_complete referenced by spec.md section 4.C's
// check_last_replayed_message.
func (e *Endpoint) publishReplayComplete(correlationID int64) api.PublisherAction {
	return e.publisher.PublishReplayComplete(e.ConnectionID, correlationID)
}

// IsClosed reports whether this endpoint has already disconnected.
func (e *Endpoint) IsClosed() bool {
	return e.closed.Load()
}

// Close releases the socket and any resources the endpoint owns. Safe
// to call more than once.
func (e *Endpoint) Close() {
	e.closed.Store(true)
	_ = e.channel.Close()
}
