// File: throttle/builder.go
// Package throttle implements the synthetic Business Message Reject
// builder a sender endpoint calls into when the inbound throttle rule
// evaluator (out of scope for this module) decides a message must be
// rejected. Grounded on spec.md section 4.E / SPEC_FULL.md section 4.E.
// The builder stores the configured window and limit only as a
// configured/not-configured gate for Build; it keeps no message counts.
package throttle

import (
	"fmt"

	"github.com/hioload/fixgw/api"
)

// BusinessRejectReason is the FIX BusinessRejectReason(380) value used
// for throttle rejects, per spec.md section 4.E.
const BusinessRejectReason = 99

// BusinessMessageRejectMsgType is FIX MsgType(35)=j.
const BusinessMessageRejectMsgType = "j"

// Builder is the concrete throttle.Builder for one session. It is
// created lazily by FixEndpoint on the first throttle reject, since it
// needs the session key that only exists after logon. It only renders
// the reject body; deciding whether a message should be throttled in
// the first place is the inbound rule evaluator's job, out of scope
// here (spec.md section 1).
type Builder struct {
	sessionID    uint64
	connectionID uint64
	key          api.SessionKey

	windowMs int64
	limit    int
}

// NewBuilder constructs a throttle builder bound to one session.
func NewBuilder(sessionID, connectionID uint64, key api.SessionKey) *Builder {
	return &Builder{sessionID: sessionID, connectionID: connectionID, key: key}
}

// Configure sets the sliding window; a non-positive limit or window is
// rejected as a configuration error.
func (b *Builder) Configure(windowMs int64, limit int) bool {
	if windowMs <= 0 || limit <= 0 {
		return false
	}
	b.windowMs = windowMs
	b.limit = limit
	return true
}

// Build renders a Business Message Reject referencing refMsgType and
// refSeqNum. Returns ok=false if the throttle has not been configured,
// matching FixEndpoint's "drop silently, no disconnect" policy.
func (b *Builder) Build(refMsgType string, refSeqNum, seq int32, businessRejectRefID []byte) (body []byte, msgType string, ok bool) {
	if b.windowMs <= 0 || b.limit <= 0 {
		return nil, "", false
	}

	body = []byte(fmt.Sprintf(
		"35=%s|49=%s|56=%s|372=%s|45=%d|380=%d|379=%s|",
		BusinessMessageRejectMsgType,
		b.key.SenderCompID,
		b.key.TargetCompID,
		refMsgType,
		refSeqNum,
		BusinessRejectReason,
		string(businessRejectRefID),
	))
	return body, BusinessMessageRejectMsgType, true
}
