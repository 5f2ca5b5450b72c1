// File: cmd/fixgw-gateway/main.go
// Process wiring for the FIX sender gateway: config, structured logger,
// Prometheus registry + HTTP scrape endpoint, TCP listener, framer
// loop, and signal-driven graceful shutdown. Grounded on the teacher's
// server/hioload.go Config/DefaultConfig shape and
// Aidin1998-finalex's services/fiat/cmd/fiat-gateway/main.go Prometheus
// + zap wiring.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hioload/fixgw/api"
	"github.com/hioload/fixgw/bus"
	"github.com/hioload/fixgw/core/reattempt"
	"github.com/hioload/fixgw/internal/errsink"
	"github.com/hioload/fixgw/internal/framer"
	"github.com/hioload/fixgw/internal/metrics"
	"github.com/hioload/fixgw/internal/reactor"
	"github.com/hioload/fixgw/internal/sender"
	"github.com/hioload/fixgw/transport/tcp"
)

// Config holds the gateway's runtime parameters.
type Config struct {
	ListenAddr            string
	MetricsAddr           string
	LibraryID             int32
	MaxBytesInBuffer      int64
	SlowConsumerTimeoutMs int64
	TickerMs              int
	ReplayBusCapacity     int
	WorkerCPUs            []int
}

// DefaultConfig returns a baseline configuration, matching the
// teacher's DefaultConfig-per-facade idiom.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            ":9878",
		MetricsAddr:           ":9879",
		LibraryID:             1,
		MaxBytesInBuffer:      8 * 1024 * 1024,
		SlowConsumerTimeoutMs: 30_000,
		TickerMs:              50,
		ReplayBusCapacity:     1024,
	}
}

// stubReceiver satisfies framer.Receiver; the receive-side FIX session
// state machine is out of scope for this gateway.
type stubReceiver struct {
	connectionID uint64
	log          *zap.Logger
}

func (r *stubReceiver) CompleteDisconnect(reason api.DisconnectReason) {
	r.log.Info("connection disconnected", zap.Uint64("connection_id", r.connectionID), zap.String("reason", reason.String()))
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := DefaultConfig()

	registry := prometheus.NewRegistry()
	counters := metrics.NewSink(registry)
	errSink := errsink.NewZapSink(log)
	publisher := bus.NewInMemory(cfg.ReplayBusCapacity)
	pool := reattempt.NewPool()

	r, err := reactor.New()
	if err != nil {
		log.Warn("reactor unavailable, falling back to fixed-interval polling", zap.Error(err))
		r = nil
	}

	loop := framer.NewLoop(r, log, cfg.TickerMs)

	var nextConnectionID atomic.Uint64
	onAccept := func(conn net.Conn) {
		connectionID := nextConnectionID.Add(1)

		nowMs := time.Now().UnixMilli()
		channel, err := tcp.NewChannel(conn, func(correlationID int64) {
			log.Debug("replay complete on wire", zap.Uint64("connection_id", connectionID), zap.Int64("correlation_id", correlationID))
		})
		if err != nil {
			log.Error("failed to wrap accepted connection", zap.Error(err))
			_ = conn.Close()
			return
		}

		base := sender.NewEndpoint(connectionID, cfg.LibraryID, channel, counters, errSink, loop,
			publisher, log, cfg.MaxBytesInBuffer, cfg.SlowConsumerTimeoutMs, nowMs)
		fx := sender.NewFixEndpoint(base, pool, nil, nil)

		loop.AddEndpoint(connectionID, channel.RawFD(), fx, &stubReceiver{connectionID: connectionID, log: log})
		log.Info("connection accepted", zap.Uint64("connection_id", connectionID), zap.String("remote", conn.RemoteAddr().String()))
	}

	ln, err := tcp.StartListener(tcp.ListenerConfig{
		Addr:       cfg.ListenAddr,
		WorkerCPUs: cfg.WorkerCPUs,
		OnAccept:   onAccept,
		Log:        log,
	})
	if err != nil {
		log.Fatal("failed to start listener", zap.Error(err))
	}
	log.Info("listening", zap.String("addr", cfg.ListenAddr))

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	go loop.Run(func() int64 { return time.Now().UnixMilli() })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	_ = ln.Close()
	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
