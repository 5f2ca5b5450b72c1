// File: internal/reactor/reactor.go
// Package reactor is a minimal, platform-neutral OS readiness-notification
// seam the framer loop uses to wake promptly when a backlogged
// connection's socket becomes writable again, instead of relying solely
// on a fixed polling interval. Grounded on the teacher's
// reactor/reactor.go interface split (reactor.go + reactor_linux.go +
// reactor_stub.go), trimmed to the write-readiness subset this gateway
// actually needs.
package reactor

// Event reports that a registered connection's socket is ready for
// further writes.
type Event struct {
	ConnectionID uint64
}

// Reactor is the platform-neutral readiness-notification contract.
type Reactor interface {
	// RegisterWritable arms one-shot write-readiness notification for
	// the given fd, tagged with connectionID.
	RegisterWritable(fd uintptr, connectionID uint64) error

	// Wait blocks until at least one registered fd becomes writable (or
	// the timeout elapses), filling ready with the connection ids that
	// fired. Returns the number of events written into ready.
	Wait(ready []Event, timeoutMs int) (int, error)

	// Close releases the reactor's OS resources.
	Close() error
}
