// Package audit defines the fire-and-forget sink for security-relevant
// events. Sink failures must never affect the primary operation; the
// zap-backed implementation cannot fail and alternate sinks (message bus,
// SIEM forwarder) plug in behind the same interface.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sink receives security-relevant events.
type Sink interface {
	Record(ctx context.Context, userID, event string, details map[string]any)
}

// ZapSink writes audit events through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

var _ Sink = (*ZapSink)(nil)

// NewZapSink constructs a logger-backed audit sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.L()
	}
	return &ZapSink{logger: logger}
}

// Record emits the event. It never returns an error and never blocks on
// anything slower than the logger itself.
func (s *ZapSink) Record(_ context.Context, userID, event string, details map[string]any) {
	fields := make([]zap.Field, 0, len(details)+3)
	fields = append(fields,
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.Time("timestamp", time.Now().UTC()),
	)
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Info("audit", fields...)
}

// Nop discards all events. Useful in tests.
type Nop struct{}

func (Nop) Record(context.Context, string, string, map[string]any) {}
