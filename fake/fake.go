// Package fake provides function-field test doubles for the sender
// endpoint's external collaborators, in the style of the teacher's
// tests/fake package: each fake carries an optional func field per
// method, defaulting to a harmless implementation when nil.
package fake

import (
	"sync"

	"github.com/hioload/fixgw/api"
)

// Channel is a fake api.TcpChannel that records every write and lets
// tests script partial writes and errors.
type Channel struct {
	mu sync.Mutex

	WriteFunc func(buf []byte, seq int32, replay bool) (int, error)

	Written           [][]byte
	Seqs              []int32
	ReplayFlags       []bool
	ReplayCompletions []int64
	Closed            bool
	closeErr          error
}

func NewChannel() *Channel { return &Channel{} }

func (c *Channel) Write(buf []byte, seq int32, replay bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteFunc != nil {
		return c.WriteFunc(buf, seq, replay)
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	c.Written = append(c.Written, cp)
	c.Seqs = append(c.Seqs, seq)
	c.ReplayFlags = append(c.ReplayFlags, replay)
	return len(buf), nil
}

func (c *Channel) OnReplayComplete(correlationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReplayCompletions = append(c.ReplayCompletions, correlationID)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return c.closeErr
}

func (c *Channel) RawFD() uintptr { return 0 }

// TotalWritten concatenates every accepted write in call order.
func (c *Channel) TotalWritten() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, w := range c.Written {
		out = append(out, w...)
	}
	return out
}

// Publisher is a fake api.InboundPublisher.
type Publisher struct {
	mu     sync.Mutex
	Action api.PublisherAction
	Calls  []struct {
		ConnectionID  uint64
		CorrelationID int64
	}
}

func NewPublisher() *Publisher { return &Publisher{Action: api.ActionContinue} }

func (p *Publisher) PublishReplayComplete(connectionID uint64, correlationID int64) api.PublisherAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, struct {
		ConnectionID  uint64
		CorrelationID int64
	}{connectionID, correlationID})
	return p.Action
}

// TimingSink is a fake api.MessageTimingSink.
type TimingSink struct {
	mu   sync.Mutex
	Msgs []struct {
		Seq          int32
		ConnectionID uint64
		Meta         []byte
	}
}

func NewTimingSink() *TimingSink { return &TimingSink{} }

func (t *TimingSink) OnMessage(seq int32, connectionID uint64, meta []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Msgs = append(t.Msgs, struct {
		Seq          int32
		ConnectionID uint64
		Meta         []byte
	}{seq, connectionID, meta})
}

// ErrorSink is a fake api.ErrorSink.
type ErrorSink struct {
	mu     sync.Mutex
	Errors []error
}

func NewErrorSink() *ErrorSink { return &ErrorSink{} }

func (e *ErrorSink) OnError(connectionID uint64, sessionID uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Errors = append(e.Errors, err)
}

// Framer is a fake api.Framer that records disconnect calls.
type Framer struct {
	mu          sync.Mutex
	Disconnects []struct {
		ConnectionID uint64
		Reason       api.DisconnectReason
	}
}

func NewFramer() *Framer { return &Framer{} }

func (f *Framer) CompleteDisconnect(connectionID uint64, reason api.DisconnectReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects = append(f.Disconnects, struct {
		ConnectionID uint64
		Reason       api.DisconnectReason
	}{connectionID, reason})
}

func (f *Framer) DisconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Disconnects)
}

// Counters is a fake api.Counters recording the latest values it saw.
type Counters struct {
	mu                      sync.Mutex
	BytesInBuffer           map[uint64]int64
	InvalidLibraryAttempts  map[uint64]int
	SlowStatusCalls         []bool
	DisconnectReasons       []api.DisconnectReason
}

func NewCounters() *Counters {
	return &Counters{
		BytesInBuffer:          make(map[uint64]int64),
		InvalidLibraryAttempts: make(map[uint64]int),
	}
}

func (c *Counters) SetBytesInBuffer(connectionID uint64, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BytesInBuffer[connectionID] = n
}

func (c *Counters) IncInvalidLibraryAttempts(connectionID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidLibraryAttempts[connectionID]++
}

func (c *Counters) OnSlowStatus(connectionID uint64, slow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SlowStatusCalls = append(c.SlowStatusCalls, slow)
}

func (c *Counters) OnDisconnect(connectionID uint64, reason api.DisconnectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisconnectReasons = append(c.DisconnectReasons, reason)
}
