// File: transport/tcp/listener.go
// ListenerConfig and StartListener implement the CPU-affinity-aware
// accept loop, grounded on the teacher's
// transport/tcp/listener.go:StartTCPListener, minus the WebSocket
// handshake (this gateway hands accepted connections straight to a FIX
// session handler).
package tcp

import (
	"fmt"
	"net"

	"go.uber.org/zap"
)

// ListenerConfig configures the accept loop.
type ListenerConfig struct {
	Addr       string
	WorkerCPUs []int
	OnAccept   func(conn net.Conn)
	Log        *zap.Logger
}

// StartListener opens the listening socket, applies CPU affinity to the
// accept goroutine if requested, and runs the accept loop until ln.Close
// is called by the caller (via the returned net.Listener) or the
// process exits.
func StartListener(cfg ListenerConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen failed: %w", err)
	}

	go func() {
		if len(cfg.WorkerCPUs) > 0 {
			setCPUAffinity(cfg.WorkerCPUs[0])
		}
		acceptLoop(ln, cfg)
	}()
	return ln, nil
}

func acceptLoop(ln net.Listener, cfg ListenerConfig) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if cfg.Log != nil {
				cfg.Log.Info("accept loop stopped", zap.Error(err))
			}
			return
		}
		go cfg.OnAccept(conn)
	}
}
