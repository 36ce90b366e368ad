package sink

import (
	"context"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Nop
	log logger.Logger
}

// NewLogSink wraps l.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Discard()
	}
	return &LogSink{log: l}
}

// StatusChanged implements Sink.
func (s *LogSink) StatusChanged(ev model.StatusEvent) {
	metrics.RecordSinkEvent("log", "status")
	s.log.Info(context.Background(), ev.Message,
		logger.String("user", ev.User),
		logger.String("status", ev.Status.Key()),
		logger.String("color", ev.Color))
}

// Message implements Sink.
func (s *LogSink) Message(ev model.LogEvent) {
	metrics.RecordSinkEvent("log", "message")
	ctx := context.Background()
	switch ev.Level {
	case "error":
		s.log.Error(ctx, ev.Message)
	case "warn":
		s.log.Warn(ctx, ev.Message)
	case "debug":
		s.log.Debug(ctx, ev.Message)
	default:
		s.log.Info(ctx, ev.Message)
	}
}
