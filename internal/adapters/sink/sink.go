// Package sink delivers status changes, log lines and preview frames to
// their consumers. Every Sink method must return promptly; slow consumers
// drop events rather than stall the caller.
package sink

import (
	"github.com/okian/posture/internal/domain/model"
)

// Sink receives monitor events.
type Sink interface {
	StatusChanged(ev model.StatusEvent)
	Message(ev model.LogEvent)
	PreviewFrame(f model.Frame)
}

// Nop ignores everything. Embed it to implement only some methods.
type Nop struct{}

// StatusChanged implements Sink.
func (Nop) StatusChanged(model.StatusEvent) {}

// Message implements Sink.
func (Nop) Message(model.LogEvent) {}

// PreviewFrame implements Sink.
func (Nop) PreviewFrame(model.Frame) {}

// Fanout forwards every event to each sink in order.
type Fanout []Sink

// NewFanout drops nil sinks.
func NewFanout(sinks ...Sink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// StatusChanged implements Sink.
func (f Fanout) StatusChanged(ev model.StatusEvent) {
	for _, s := range f {
		s.StatusChanged(ev)
	}
}

// Message implements Sink.
func (f Fanout) Message(ev model.LogEvent) {
	for _, s := range f {
		s.Message(ev)
	}
}

// PreviewFrame implements Sink.
func (f Fanout) PreviewFrame(fr model.Frame) {
	for _, s := range f {
		s.PreviewFrame(fr)
	}
}
