// File: internal/errsink/errsink.go
// Package errsink implements api.ErrorSink over go.uber.org/zap,
// matching spec.md section 7's error-handling design (log and route to
// disconnect, never propagate back to the caller).
package errsink

import "go.uber.org/zap"

// ZapSink logs every reported error at Error level with structured
// connection/session fields.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps an existing logger. Passing zap.NewNop() disables
// error logging entirely, useful in tests.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (z *ZapSink) OnError(connectionID uint64, sessionID uint64, err error) {
	z.log.Error("sender endpoint error",
		zap.Uint64("connection_id", connectionID),
		zap.Uint64("session_id", sessionID),
		zap.Error(err))
}
