// File: transport/tcp/channel.go
// Package tcp implements api.TcpChannel over a plain net.Conn, and a
// CPU-affinity-aware accept loop feeding newly accepted connections to
// a caller-supplied handler. Grounded on the teacher's
// transport/tcp/listener.go accept-loop shape and
// transport/tcp/affinity_linux.go's setCPUAffinity, with the WebSocket
// handshake stripped out — this gateway speaks raw FIX TCP sessions,
// not a WebSocket upgrade.
package tcp

import (
	"net"
	"syscall"

	"github.com/hioload/fixgw/api"
)

// Channel adapts a net.Conn (expected to be a *net.TCPConn) to
// api.TcpChannel. Write never blocks: SetWriteDeadline(time.Now())-free
// non-blocking behavior comes from setting the connection's underlying
// fd to O_NONBLOCK via SyscallConn, matching spec.md's "returns bytes
// written, 0 is legal" contract instead of blocking the framer thread.
type Channel struct {
	conn     net.Conn
	raw      syscall.RawConn
	fd       uintptr
	onReplay func(correlationID int64)
}

// NewChannel wraps conn, arranging for the underlying descriptor to be
// non-blocking and caching its raw fd for reactor registration.
func NewChannel(conn net.Conn, onReplayComplete func(correlationID int64)) (*Channel, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return &Channel{conn: conn, onReplay: onReplayComplete}, nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var fd uintptr
	var setErr error
	if err := raw.Control(func(descriptor uintptr) {
		fd = descriptor
		setErr = syscall.SetNonblock(int(descriptor), true)
	}); err != nil {
		return nil, err
	}
	if setErr != nil {
		return nil, setErr
	}

	return &Channel{conn: conn, raw: raw, fd: fd, onReplay: onReplayComplete}, nil
}

// Write implements api.TcpChannel with a single raw write syscall
// attempt — no retry, no blocking on netpoller readiness — so a full
// kernel send buffer surfaces immediately as (0, nil) rather than
// parking the framer's single goroutine until the peer drains. seq and
// replay are accepted for diagnostic-logging parity with the reference
// implementation but do not affect the write itself.
func (c *Channel) Write(buf []byte, seq int32, replay bool) (int, error) {
	if c.raw == nil {
		// No raw fd access (e.g. a test double conn): fall back to a
		// plain blocking write, acceptable only for non-production
		// net.Conn implementations that don't support SyscallConn.
		return c.conn.Write(buf)
	}

	var n int
	var writeErr error
	ctrlErr := c.raw.Write(func(fd uintptr) bool {
		n, writeErr = syscall.Write(int(fd), buf)
		if writeErr == syscall.EAGAIN || writeErr == syscall.EWOULDBLOCK {
			n, writeErr = 0, nil
		}
		return true
	})
	if ctrlErr != nil {
		return n, ctrlErr
	}
	return n, writeErr
}

// OnReplayComplete forwards to the callback supplied at construction
// (cmd/fixgw-gateway wires it to a debug log line).
func (c *Channel) OnReplayComplete(correlationID int64) {
	if c.onReplay != nil {
		c.onReplay(correlationID)
	}
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

func (c *Channel) RawFD() uintptr {
	return c.fd
}

var _ api.TcpChannel = (*Channel)(nil)
