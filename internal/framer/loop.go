// File: internal/framer/loop.go
// Package framer implements FramerLoop: the single-threaded collaborator
// that owns the sender-endpoint table, drives Poll on every tick, routes
// outbound submissions to the right endpoint, and completes coordinated
// disconnects. Grounded on spec.md section 4.D / SPEC_FULL.md section
// 4.D; the quit-channel run-loop idiom is adapted from the
// teacher's core/concurrency/eventloop.go, generalized from a generic
// EventHandler dispatch into typed FixEndpoint dispatch.
package framer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
	"github.com/hioload/fixgw/internal/reactor"
	"github.com/hioload/fixgw/internal/sender"
)

// Receiver is the stub for the out-of-scope receive-side counterpart of
// a connection; spec.md's Framer.complete_disconnect must route through
// it, but its own responsibilities (inbound FIX parsing, session state)
// are out of scope here.
type Receiver interface {
	CompleteDisconnect(reason api.DisconnectReason)
}

type endpointPair struct {
	sender   *sender.FixEndpoint
	receiver Receiver
	fd       uintptr
}

// Loop is the FramerLoop collaborator.
type Loop struct {
	mu    sync.Mutex
	table map[uint64]*endpointPair

	reactor  reactor.Reactor
	log      *zap.Logger
	tickerMs int

	ready chan uint64
	quit  chan struct{}
	done  chan struct{}
}

// NewLoop constructs an empty framer loop. r may be nil, in which case
// the loop falls back to pure fixed-interval polling.
func NewLoop(r reactor.Reactor, log *zap.Logger, tickerMs int) *Loop {
	return &Loop{
		table:    make(map[uint64]*endpointPair),
		reactor:  r,
		log:      log,
		tickerMs: tickerMs,
		ready:    make(chan uint64, 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddEndpoint registers a newly accepted connection's sender/receiver
// pair, and — if a reactor is present — arms write-readiness
// notification for its socket so Run's readiness goroutine wakes it.
func (l *Loop) AddEndpoint(connectionID uint64, fd uintptr, s *sender.FixEndpoint, r Receiver) {
	l.mu.Lock()
	l.table[connectionID] = &endpointPair{sender: s, receiver: r, fd: fd}
	l.mu.Unlock()

	if l.reactor != nil {
		if err := l.reactor.RegisterWritable(fd, connectionID); err != nil {
			l.log.Warn("reactor registration failed", zap.Uint64("connection_id", connectionID), zap.Error(err))
		}
	}
}

// RemoveEndpoint drops a connection from the table without notifying
// its receiver; used when the receiver side has already torn itself
// down independently.
func (l *Loop) RemoveEndpoint(connectionID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.table, connectionID)
}

// Dispatch routes an outbound library submission to the addressed
// connection's sender endpoint. Returns false if no such connection is
// currently registered (already disconnected, or never existed).
func (l *Loop) Dispatch(connectionID uint64, fn func(*sender.FixEndpoint)) bool {
	l.mu.Lock()
	pair, ok := l.table[connectionID]
	l.mu.Unlock()
	if !ok {
		return false
	}
	fn(pair.sender)
	return true
}

// CompleteDisconnect implements api.Framer: it synchronously removes
// the pair from the table, closes the sender endpoint, and notifies the
// paired receiver.
func (l *Loop) CompleteDisconnect(connectionID uint64, reason api.DisconnectReason) {
	l.mu.Lock()
	pair, ok := l.table[connectionID]
	if ok {
		delete(l.table, connectionID)
	}
	l.mu.Unlock()

	if !ok {
		return
	}
	pair.sender.Close()
	if pair.receiver != nil {
		pair.receiver.CompleteDisconnect(reason)
	}
}

// Tick drives Poll(nowMs) across every registered endpoint once. It is
// exported directly so tests and a caller with its own clock/ticker can
// drive it without going through Run. Any endpoint that still has a
// backlog after Poll is re-armed with the reactor, since a fired
// registration is one-shot.
func (l *Loop) Tick(nowMs int64) {
	l.mu.Lock()
	ids := make([]uint64, 0, len(l.table))
	pairs := make([]*endpointPair, 0, len(l.table))
	for id, p := range l.table {
		ids = append(ids, id)
		pairs = append(pairs, p)
	}
	l.mu.Unlock()

	for i, p := range pairs {
		p.sender.Poll(nowMs)
		l.rearmIfNeeded(ids[i], p)
	}
}

// pollReady drives Poll for a single connection named by a reactor
// readiness event, then re-arms it if it still has a backlog.
func (l *Loop) pollReady(connectionID uint64, nowMs int64) {
	l.mu.Lock()
	pair, ok := l.table[connectionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	pair.sender.Poll(nowMs)
	l.rearmIfNeeded(connectionID, pair)
}

// rearmIfNeeded re-registers write-readiness for a connection whose
// reattempt buffer is still non-empty after a Poll, since both epoll's
// EPOLLONESHOT and this reactor's contract fire a registration at most
// once per arm.
func (l *Loop) rearmIfNeeded(connectionID uint64, pair *endpointPair) {
	if l.reactor == nil || !pair.sender.RequiresRetry() {
		return
	}
	if err := l.reactor.RegisterWritable(pair.fd, connectionID); err != nil {
		l.log.Warn("reactor re-registration failed", zap.Uint64("connection_id", connectionID), zap.Error(err))
	}
}

// runReadiness drains write-readiness events from the reactor and
// feeds their connection ids to Run via l.ready, so Run can drive Poll
// for a newly-writable backlogged connection immediately instead of
// waiting out the full tick interval. Only started when a reactor is
// configured.
func (l *Loop) runReadiness() {
	events := make([]reactor.Event, 64)
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		n, err := l.reactor.Wait(events, l.tickerMs)
		if err != nil {
			l.log.Warn("reactor wait failed", zap.Error(err))
			continue
		}
		for i := 0; i < n; i++ {
			select {
			case l.ready <- events[i].ConnectionID:
			case <-l.quit:
				return
			}
		}
	}
}

// Run drives Tick on a fixed interval until Stop is called. If a
// reactor is present, Run also starts a goroutine that blocks in
// reactor.Wait and feeds ready connection ids back through l.ready, so
// a newly-writable backlogged connection is drained promptly rather
// than waiting out the full interval.
func (l *Loop) Run(now func() int64) {
	defer close(l.done)

	interval := time.Duration(l.tickerMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	if l.reactor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.runReadiness()
		}()
	}

	for {
		select {
		case <-l.quit:
			wg.Wait()
			return
		case <-ticker.C:
			l.Tick(now())
		case connectionID := <-l.ready:
			l.pollReady(connectionID, now())
		}
	}
}

// Stop signals Run to exit and waits for it to finish. Safe to call at
// most once.
func (l *Loop) Stop() {
	close(l.quit)
	<-l.done
}

// Len reports the number of currently registered connections.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.table)
}
