// Package api defines the seams between the sender-endpoint core and its
// external collaborators: the TCP channel, the inbound message bus, the
// timing sink, the error sink, and the framer. Everything in this file is
// a thin interface — concrete implementations live in transport/tcp,
// bus, internal/errsink, internal/metrics, and internal/framer.
package api

// DisconnectReason identifies why the framer tore an endpoint down.
type DisconnectReason int

const (
	// DisconnectSlowConsumer fires when a peer's backlog exceeds the
	// configured threshold or its send-timeout watchdog expires.
	DisconnectSlowConsumer DisconnectReason = iota + 1
	// DisconnectException fires when a socket write returns an error.
	DisconnectException
	// DisconnectPeerClosed fires when the counterparty closes its side.
	DisconnectPeerClosed
	// DisconnectAdmin fires on operator-requested teardown.
	DisconnectAdmin
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectSlowConsumer:
		return "SLOW_CONSUMER"
	case DisconnectException:
		return "EXCEPTION"
	case DisconnectPeerClosed:
		return "PEER_CLOSED"
	case DisconnectAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// PublisherAction mirrors the CONTINUE/ABORT outcome of a publish
// attempt against the inbound message bus.
type PublisherAction int

const (
	// ActionContinue indicates the publish succeeded (or there was
	// nothing to publish).
	ActionContinue PublisherAction = iota
	// ActionAbort indicates the publisher back-pressured the call; the
	// caller must retry later.
	ActionAbort
)

// SessionKey is the opaque composite identifying a FIX session
// (SenderCompID/TargetCompID/sub-IDs). Nothing in this module inspects
// its fields beyond passing them to the throttle reject header.
type SessionKey struct {
	SenderCompID string
	TargetCompID string
	SenderSubID  string
	TargetSubID  string
}

// TcpChannel is the non-blocking socket abstraction a sender endpoint
// writes onto. Write may accept fewer bytes than requested; 0 is legal
// and means the kernel send buffer is currently full.
type TcpChannel interface {
	// Write attempts to write buf[0:len(buf)] without blocking. seq and
	// replay are passed through for diagnostic/reproduction logging
	// only; they do not affect the write itself.
	Write(buf []byte, seq int32, replay bool) (int, error)

	// OnReplayComplete notifies the channel that a replay burst with
	// this correlation id has fully drained onto the wire.
	OnReplayComplete(correlationID int64)

	// Close tears down the underlying connection. Idempotent.
	Close() error

	// RawFD exposes the OS file descriptor for reactor registration.
	RawFD() uintptr
}

// InboundPublisher stands in for the shared message bus that carries
// session-level signals (like replay-complete) back to library-side
// session logic. It is intentionally minimal — the real bus's wire
// format and transport are out of scope for this module.
type InboundPublisher interface {
	// PublishReplayComplete signals that a replay burst has finished.
	// Returns ActionAbort if the publisher is currently back-pressured.
	PublishReplayComplete(connectionID uint64, correlationID int64) PublisherAction
}

// MessageTimingSink receives a callback exactly once per successfully
// flushed non-replay message, carrying that message's metadata blob.
// Optional — a nil sink means "don't time". Adapted from the reference
// implementation's buf/metaOff/metaLen triple (which addresses into a
// single shared wire buffer) into a plain slice, since this port keeps
// a message's body and metadata as independent byte slices rather than
// offsets into one arena.
type MessageTimingSink interface {
	OnMessage(seq int32, connectionID uint64, meta []byte)
}

// ErrorSink receives synchronous error reports; sender-endpoint methods
// never propagate errors to their callers directly.
type ErrorSink interface {
	OnError(connectionID uint64, sessionID uint64, err error)
}

// Framer is the collaborator that owns the endpoint table and routes
// coordinated disconnects through an endpoint's sibling receiver.
type Framer interface {
	CompleteDisconnect(connectionID uint64, reason DisconnectReason)
}

// Counters is the seam through which a sender endpoint publishes its
// externally-observable counters: the active stream's buffered byte
// count, the count of submissions dropped for a stale library id, and
// slow-consumer status transitions. Grounded on the reference
// implementation's AtomicCounter fields, generalized into an interface
// so the concrete backend (Prometheus, or a test fake) is pluggable.
type Counters interface {
	SetBytesInBuffer(connectionID uint64, n int64)
	IncInvalidLibraryAttempts(connectionID uint64)
	OnSlowStatus(connectionID uint64, slow bool)
	OnDisconnect(connectionID uint64, reason DisconnectReason)
}

// ThrottleRejectBuilder constructs a synthetic Business Message Reject
// used to signal a throttled/rejected inbound request back to the
// counterparty. Build returns false on configuration error (e.g. the
// throttle window/limit was never configured) — the caller drops the
// reject silently in that case, per spec.
type ThrottleRejectBuilder interface {
	Configure(windowMs int64, limit int) bool
	Build(refMsgType string, refSeqNum, seq int32, businessRejectRefID []byte) (body []byte, msgType string, ok bool)
}
