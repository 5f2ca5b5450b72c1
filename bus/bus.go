// File: bus/bus.go
// Package bus is a minimal in-memory stand-in for the message bus that
// carries session-level signals (like replay-complete) back to
// library-side session logic. spec.md treats the real bus's transport
// and wire format as an opaque out-of-scope publisher/subscriber;
// SPEC_FULL.md section 6 adds this in-memory implementation only so
// on_replay_complete's CONTINUE/ABORT back-pressure semantics are
// exercisable without a real bus.
package bus

import (
	"sync"

	"github.com/hioload/fixgw/api"
)

// ReplayCompleteEvent is delivered to Subscribe callbacks once a
// publish succeeds.
type ReplayCompleteEvent struct {
	ConnectionID  uint64
	CorrelationID int64
}

// InMemory is a bounded, non-blocking channel-backed InboundPublisher.
// Publishing to a full channel reports back-pressure via ActionAbort,
// matching the CONTINUE/ABORT contract sender endpoints already expect.
type InMemory struct {
	mu       sync.RWMutex
	capacity int
	events   chan ReplayCompleteEvent
}

// NewInMemory creates a publisher with the given channel capacity.
func NewInMemory(capacity int) *InMemory {
	return &InMemory{capacity: capacity, events: make(chan ReplayCompleteEvent, capacity)}
}

// PublishReplayComplete implements api.InboundPublisher.
func (b *InMemory) PublishReplayComplete(connectionID uint64, correlationID int64) api.PublisherAction {
	select {
	case b.events <- ReplayCompleteEvent{ConnectionID: connectionID, CorrelationID: correlationID}:
		return api.ActionContinue
	default:
		return api.ActionAbort
	}
}

// Drain removes and returns every currently-buffered event, for tests
// and for library-side consumers that poll rather than block.
func (b *InMemory) Drain() []ReplayCompleteEvent {
	var out []ReplayCompleteEvent
	for {
		select {
		case ev := <-b.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Len reports the number of currently-buffered, undelivered events.
func (b *InMemory) Len() int {
	return len(b.events)
}
