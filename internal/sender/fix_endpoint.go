// File: internal/sender/fix_endpoint.go
//
// FixEndpoint is the per-connection multiplexer: it interleaves the
// live "normal" outbound stream with a "replay" burst stream onto one
// non-blocking TcpChannel, buffering into a per-stream reattempt.Buffer
// under partial-write back-pressure, and disconnects slow consumers.
// This is a direct port of the reference implementation's
// FixSenderEndPoint (uk.co.real_logic.artio.engine.framer), generalized
// to Go's slice-based buffer model in place of DirectBuffer/offset
// addressing — see DESIGN.md for the exact correspondence.
package sender

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
	"github.com/hioload/fixgw/core/reattempt"
)

// noReattempt marks reattemptBytesWritten as "no partial write in
// flight", matching spec.md section 3's "0 means no in-progress
// partial write".
const noReattempt = 0

// ThrottleFactory constructs a fresh throttle reject builder once a
// session's key and dictionary become known at logon (spec.md section
// 9: "lazy... because it depends on session_key and fix_dictionary").
type ThrottleFactory func(sessionID uint64, connectionID uint64, key api.SessionKey) api.ThrottleRejectBuilder

// FixEndpoint is the FIX specialization of Endpoint.
type FixEndpoint struct {
	*Endpoint

	pool            *reattempt.Pool
	timingSink      api.MessageTimingSink
	throttleFactory ThrottleFactory

	sessionID  uint64
	sessionKey api.SessionKey
	throttle   api.ThrottleRejectBuilder

	normalBuffer *reattempt.Buffer
	replayBuffer *reattempt.Buffer

	replaying             bool
	replayCorrelationID   int64
	requiresRetry         bool
	reattemptBytesWritten int
}

// NewFixEndpoint constructs a FixEndpoint on top of an already-built
// Endpoint. timingSink and throttleFactory may be nil; a nil
// throttleFactory means OnThrottleReject always drops (configuration
// error), matching spec.md section 7's "per-message drop; no disconnect".
func NewFixEndpoint(
	base *Endpoint,
	pool *reattempt.Pool,
	timingSink api.MessageTimingSink,
	throttleFactory ThrottleFactory,
) *FixEndpoint {
	return &FixEndpoint{
		Endpoint:        base,
		pool:            pool,
		timingSink:      timingSink,
		throttleFactory: throttleFactory,
	}
}

// OnLogon attaches the session identity once logon completes. Nothing
// in this module validates sessionKey; it is opaque, per spec.md
// section 3.
func (f *FixEndpoint) OnLogon(sessionID uint64, key api.SessionKey) {
	f.sessionID = sessionID
	f.sessionKey = key
}

// SessionID returns the endpoint's session id, 0 before logon.
func (f *FixEndpoint) SessionID() uint64 {
	return f.sessionID
}

// IsReplaying reports whether the endpoint currently believes it is
// draining a replay burst.
func (f *FixEndpoint) IsReplaying() bool {
	return f.replaying
}

// RequiresRetry reports whether the currently active stream (normal or
// replay, per IsReplaying) has a backlog in its reattempt buffer. It
// does not independently track the inactive stream: a message enqueued
// onto the inactive stream while the other stream is active (e.g. a
// live message arriving mid-replay) leaves RequiresRetry false until
// stream alternation makes that buffer active, matching the reference
// implementation's requiresRetry field exactly. That buffered message
// is not lost — reattempt drains it once the active stream catches up
// and flips focus — but a caller polling only on RequiresRetry (such as
// framer.Loop's reactor re-arm) will not see it as outstanding backlog
// in the meantime; the periodic Tick still reaches it regardless.
func (f *FixEndpoint) RequiresRetry() bool {
	return f.requiresRetry
}

// OnOutboundMessage is the entry point for a live message submitted by
// a client library. msgType and seqIndex are accepted for interface
// fidelity with the reference implementation but are not interpreted:
// FIX session-state handling (logon/logout/sequencing) is out of scope
// for this component.
func (f *FixEndpoint) OnOutboundMessage(
	libraryID int32,
	seq int32,
	seqIndex int32,
	msgType string,
	nowMs int64,
	body []byte,
	meta []byte,
) {
	if f.IsClosed() {
		return
	}
	if libraryID != f.LibraryID {
		f.counters.IncInvalidLibraryAttempts(f.ConnectionID)
		return
	}

	f.onMessage(body, meta, seq, nowMs, false)
}

// OnReplayMessage is the entry point for a single frame of a replay
// burst sourced from the (out-of-scope) archival replay reader.
func (f *FixEndpoint) OnReplayMessage(body []byte, nowMs int64, seq int32) api.PublisherAction {
	if f.IsClosed() {
		return api.ActionContinue
	}
	f.onMessage(body, nil, seq, nowMs, true)
	return api.ActionContinue
}

// OnStartReplay notifies the endpoint that a replay burst is about to
// begin. If the endpoint is already replaying, or has retry backlog, the
// start marker is queued behind whatever's already buffered rather than
// taking effect immediately.
func (f *FixEndpoint) OnStartReplay(correlationID int64) {
	if f.IsClosed() {
		return
	}
	f.log.Debug("start replay",
		zap.Uint64("connection_id", f.ConnectionID), zap.Int64("correlation_id", correlationID))

	if f.replaying || f.requiresRetry {
		f.enqueueStartReplay(correlationID)
	} else {
		f.setReplaying(true, correlationID)
	}
}

// OnReplayComplete is the terminal sentinel for a replay burst,
// delivered by the (out-of-scope) resend-request controller.
func (f *FixEndpoint) OnReplayComplete(correlationID int64) api.PublisherAction {
	if f.IsClosed() {
		return api.ActionContinue
	}
	f.log.Debug("replay complete",
		zap.Uint64("connection_id", f.ConnectionID), zap.Int64("correlation_id", correlationID))

	if (!f.replaying && f.replayCorrelationID != correlationID) || !f.reattempt(true) {
		f.enqueueReplayComplete(correlationID)
	} else {
		f.setReplaying(false, correlationID)
		if usage := f.usageFor(false); usage > 0 && !f.requiresRetry {
			// Live messages buffered during the burst are now the active
			// stream's backlog; later ones must queue behind them.
			f.setRequiresRetry(true)
			f.SendSlowStatus(true)
			f.publishBytesInBuffer(int64(usage))
		}
		f.channel.OnReplayComplete(correlationID)
	}
	return api.ActionContinue
}

// OnValidResendRequest is observational only, per spec.md section 4.C.
func (f *FixEndpoint) OnValidResendRequest(correlationID int64) {
	f.log.Debug("valid resend request",
		zap.Uint64("connection_id", f.ConnectionID), zap.Int64("correlation_id", correlationID))
}

// ConfigureThrottle reconfigures the lazily-created throttle reject
// builder's sliding window. A nil throttleFactory means no builder can
// ever be created, which is itself a configuration error.
func (f *FixEndpoint) ConfigureThrottle(windowMs int64, limit int) bool {
	builder := f.throttleBuilder()
	if builder == nil {
		return false
	}
	return builder.Configure(windowMs, limit)
}

// OnThrottleReject constructs a synthetic Business Message Reject via
// the throttle builder and feeds it through OnOutboundMessage.
func (f *FixEndpoint) OnThrottleReject(
	libraryID int32,
	refMsgType string,
	refSeqNum int32,
	seq int32,
	seqIndex int32,
	businessRejectRefID []byte,
	nowMs int64,
) {
	if f.IsClosed() {
		return
	}
	if libraryID != f.LibraryID {
		f.counters.IncInvalidLibraryAttempts(f.ConnectionID)
		return
	}

	builder := f.throttleBuilder()
	if builder == nil {
		// No throttle factory configured: drop the reject, no disconnect.
		return
	}
	body, _, ok := builder.Build(refMsgType, refSeqNum, seq, businessRejectRefID)
	if !ok {
		// Configuration error: drop the reject, no disconnect.
		return
	}

	f.onMessage(body, nil, seq, nowMs, false)
}

func (f *FixEndpoint) throttleBuilder() api.ThrottleRejectBuilder {
	if f.throttle == nil && f.throttleFactory != nil {
		f.throttle = f.throttleFactory(f.sessionID, f.ConnectionID, f.sessionKey)
	}
	return f.throttle
}

// Poll drains any pending reattempt backlog and enforces the
// slow-consumer timeout. Returns true iff it just disconnected the
// endpoint for a slow-consumer timeout.
func (f *FixEndpoint) Poll(nowMs int64) bool {
	if f.IsClosed() {
		return false
	}

	f.reattempt(f.replaying)

	if f.checkTimeout(nowMs) {
		f.log.Warn("slow consumer timeout",
			zap.Uint64("connection_id", f.ConnectionID), zap.Uint64("session_id", f.sessionID))
		f.disconnect(api.DisconnectSlowConsumer)
		return true
	}
	return false
}

// Close releases both reattempt buffers back to the pool, then tears
// down the shared socket/counter scaffolding.
func (f *FixEndpoint) Close() {
	if f.normalBuffer != nil {
		f.pool.Put(f.normalBuffer)
		f.normalBuffer = nil
	}
	if f.replayBuffer != nil {
		f.pool.Put(f.replayBuffer)
		f.replayBuffer = nil
	}
	f.Endpoint.Close()
}

// onMessage implements spec.md section 4.C's write-or-enqueue decision
// and partial-write policy, shared by live, replay, and
// throttle-reject-derived messages.
func (f *FixEndpoint) onMessage(body, meta []byte, seq int32, nowMs int64, replay bool) {
	if (f.replaying && !replay) || (!f.replaying && replay) || f.requiresRetry {
		f.enqueueMessage(body, meta, seq, replay)
		if f.requiresRetry {
			f.reattempt(f.replaying)
		}
		return
	}

	if f.checkLastReplayedMessage(seq, replay) {
		f.enqueueMessage(body, meta, seq, replay)
		return
	}

	written, err := f.writeBuffer(body, seq, replay)
	if err != nil {
		f.onWriteError(err)
		return
	}

	before := f.reattemptBytesWritten
	total := before + written

	if total < len(body) {
		f.reattemptBytesWritten = total
		enqSeq := seq
		if replay {
			enqSeq = reattempt.NotLastReplayMsg
		}
		f.enqueueMessage(body, meta, enqSeq, replay)
		f.logBackPressure(seq, replay, written)
	} else {
		f.reattemptBytesWritten = noReattempt
		if f.timingSink != nil && !replay {
			f.timingSink.OnMessage(seq, f.ConnectionID, meta)
		}
		if before != noReattempt {
			f.logBackPressure(seq, replay, written)
		}
	}

	f.updateSendingTimeout(nowMs, written)
}

// writeBuffer resumes a write from reattemptBytesWritten, the
// head-of-queue partial-write checkpoint, and returns bytes accepted by
// this call (not the cumulative total).
func (f *FixEndpoint) writeBuffer(body []byte, seq int32, replay bool) (int, error) {
	return f.channel.Write(body[f.reattemptBytesWritten:], seq, replay)
}

// checkLastReplayedMessage reports whether the frame under
// consideration is the terminal frame of a replay burst and, if so,
// whether publishing that completion back-pressured (in which case the
// caller must enqueue-and-retry instead of writing now).
func (f *FixEndpoint) checkLastReplayedMessage(seq int32, replay bool) bool {
	if replay && seq != reattempt.NotLastReplayMsg {
		return f.publishReplayComplete(f.replayCorrelationID) == api.ActionAbort
	}
	return false
}

// processReattemptBuffer walks the given stream's reattempt buffer from
// offset 0, writing frames it can and stopping at the first one it
// can't fully flush. Returns true iff the stream is caught up
// (usage == 0) afterward.
func (f *FixEndpoint) processReattemptBuffer(replay bool) bool {
	buf := f.rawBufferFor(replay)
	if buf == nil || buf.Usage() == 0 {
		return true
	}

	offset := 0
walk:
	for offset < buf.Usage() {
		switch buf.Tag(offset) {
		case reattempt.TagEnqMsg:
			seq, bodyLen, bodyOffset := buf.MsgHeader(offset)

			if f.checkLastReplayedMessage(seq, replay) {
				f.reattemptBytesWritten = noReattempt
				break walk
			}
			if replay {
				buf.PutInt32(offset+4, reattempt.NotLastReplayMsg)
			}

			body := buf.Bytes()[bodyOffset : bodyOffset+int(bodyLen)]
			written, err := f.writeBuffer(body, seq, replay)
			if err != nil {
				f.onWriteError(err)
				return true
			}
			total := f.reattemptBytesWritten + written
			f.logBackPressure(seq, replay, written)

			if total < int(bodyLen) {
				f.reattemptBytesWritten = total
				break walk
			}

			metaLen, metaOffset := buf.MsgMeta(bodyOffset, bodyLen)
			if f.timingSink != nil && !replay {
				f.timingSink.OnMessage(seq, f.ConnectionID, buf.Bytes()[metaOffset:metaOffset+int(metaLen)])
			}
			f.reattemptBytesWritten = noReattempt
			offset += buf.MsgFrameLen(offset)

		case reattempt.TagEnqReplayComplete:
			f.reattemptBytesWritten = noReattempt
			correlationID := buf.ReadInt64(offset + 4)
			endOfReplayEntry := offset + reattempt.CorrelationFrameLen

			// Bounds-checked peek: no further buffered bytes means the
			// burst ends here (see DESIGN.md Open Question resolution).
			if !buf.HasBytesAt(endOfReplayEntry, 4) || buf.Tag(endOfReplayEntry) != reattempt.TagEnqStartReplay {
				f.setReplaying(false, correlationID)
				buf.Shuffle(endOfReplayEntry)
				f.publishBytesInBuffer(int64(f.usageFor(false)))
				return true
			}

			// Next burst continues immediately; keep draining the
			// replay stream past this marker.
			offset = endOfReplayEntry

		case reattempt.TagEnqStartReplay:
			offset += reattempt.CorrelationFrameLen

		default:
			f.errors.OnError(f.ConnectionID, f.sessionID, fmt.Errorf(
				"reattempt buffer invariant violation: tag=%d offset=%d usage=%d replay=%v",
				buf.Tag(offset), offset, buf.Usage(), replay))
			return true
		}
	}

	newUsage := buf.Shuffle(offset)
	f.publishBytesInBuffer(int64(newUsage))
	return newUsage == 0
}

// reattempt drains the named stream and, if it catches up while the
// endpoint still requires retry overall, either clears requires-retry
// (both streams empty) or flips focus to the other stream (spec.md
// section 4.C "Stream alternation").
func (f *FixEndpoint) reattempt(replaying bool) bool {
	caughtUp := f.processReattemptBuffer(replaying)
	if caughtUp && f.requiresRetry {
		other := !replaying
		usage := f.usageFor(other)
		if usage == 0 {
			f.setRequiresRetry(false)
			f.SendSlowStatus(false)
		} else {
			f.setReplaying(other, f.replayCorrelationID)
			f.publishBytesInBuffer(int64(usage))
		}
	}
	return caughtUp
}

// enqueue implements spec.md section 4.C's shared enqueue bookkeeping:
// the first buffered frame for the active stream flips requires_retry
// and announces slow status; any append to the active stream re-checks
// the overflow threshold and republishes bytes_in_buffer.
func (f *FixEndpoint) enqueue(replay bool, appendFn func(*reattempt.Buffer)) {
	currentStream := replay == f.replaying
	if !f.requiresRetry && currentStream {
		f.setRequiresRetry(true)
		f.SendSlowStatus(true)
	}

	buf := f.bufferFor(replay)
	appendFn(buf)
	usage := buf.Usage()

	if currentStream {
		if int64(usage) > f.maxBytesInBuffer {
			f.log.Warn("slow consumer buffer overflow",
				zap.Uint64("connection_id", f.ConnectionID),
				zap.Uint64("session_id", f.sessionID),
				zap.Int("usage", usage),
				zap.Int64("max_bytes_in_buffer", f.maxBytesInBuffer),
				zap.Bool("replay", replay))
			f.disconnect(api.DisconnectSlowConsumer)
		}
		f.publishBytesInBuffer(int64(usage))
	}
}

func (f *FixEndpoint) enqueueMessage(body, meta []byte, seq int32, replay bool) {
	f.enqueue(replay, func(buf *reattempt.Buffer) {
		buf.AppendMsg(seq, body, meta)
	})
}

func (f *FixEndpoint) enqueueReplayComplete(correlationID int64) {
	f.enqueue(true, func(buf *reattempt.Buffer) {
		buf.AppendReplayComplete(correlationID)
	})
}

func (f *FixEndpoint) enqueueStartReplay(correlationID int64) {
	f.enqueue(true, func(buf *reattempt.Buffer) {
		buf.AppendStartReplay(correlationID)
	})
}

// bufferFor lazily allocates (from the shared pool) the arena for the
// requested stream.
func (f *FixEndpoint) bufferFor(replay bool) *reattempt.Buffer {
	if replay {
		if f.replayBuffer == nil {
			f.replayBuffer = f.pool.Get()
		}
		return f.replayBuffer
	}
	if f.normalBuffer == nil {
		f.normalBuffer = f.pool.Get()
	}
	return f.normalBuffer
}

// rawBufferFor returns the stream's arena without allocating one.
func (f *FixEndpoint) rawBufferFor(replay bool) *reattempt.Buffer {
	if replay {
		return f.replayBuffer
	}
	return f.normalBuffer
}

func (f *FixEndpoint) usageFor(replay bool) int {
	buf := f.rawBufferFor(replay)
	if buf == nil {
		return 0
	}
	return buf.Usage()
}

func (f *FixEndpoint) setReplaying(replaying bool, correlationID int64) {
	f.log.Debug("replaying transition",
		zap.Uint64("connection_id", f.ConnectionID), zap.Bool("replaying", replaying))
	f.replaying = replaying
	f.replayCorrelationID = correlationID
}

func (f *FixEndpoint) setRequiresRetry(requiresRetry bool) {
	f.log.Debug("requires-retry transition",
		zap.Uint64("connection_id", f.ConnectionID), zap.Bool("requires_retry", requiresRetry))
	f.requiresRetry = requiresRetry
}

func (f *FixEndpoint) logBackPressure(seq int32, replay bool, written int) {
	f.log.Debug("back-pressure",
		zap.Uint64("connection_id", f.ConnectionID),
		zap.Int32("seq", seq), zap.Bool("replay", replay), zap.Int("written", written))
}

func (f *FixEndpoint) updateSendingTimeout(nowMs int64, written int) {
	if written > 0 {
		f.refreshSendingDeadline(nowMs)
	}
}

func (f *FixEndpoint) onWriteError(err error) {
	f.errors.OnError(f.ConnectionID, f.sessionID, fmt.Errorf(
		"exception reported for sessionId=%d, connectionId=%d: %w", f.sessionID, f.ConnectionID, err))
	f.disconnect(api.DisconnectException)
}
