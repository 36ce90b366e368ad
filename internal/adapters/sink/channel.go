package sink

import (
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

// ChannelSink exposes events on buffered channels. When a channel is full
// the event is dropped.
type ChannelSink struct {
	status   chan model.StatusEvent
	messages chan model.LogEvent
	previews chan model.Frame
}

// NewChannelSink creates channels of the given capacity (minimum 1).
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{
		status:   make(chan model.StatusEvent, size),
		messages: make(chan model.LogEvent, size),
		previews: make(chan model.Frame, 1),
	}
}

// Status returns the status event channel.
func (c *ChannelSink) Status() <-chan model.StatusEvent { return c.status }

// Messages returns the log event channel.
func (c *ChannelSink) Messages() <-chan model.LogEvent { return c.messages }

// Previews returns the preview frame channel.
func (c *ChannelSink) Previews() <-chan model.Frame { return c.previews }

// StatusChanged implements Sink.
func (c *ChannelSink) StatusChanged(ev model.StatusEvent) {
	select {
	case c.status <- ev:
		metrics.RecordSinkEvent("channel", "status")
	default:
		metrics.RecordSinkDrop("channel")
	}
}

// Message implements Sink.
func (c *ChannelSink) Message(ev model.LogEvent) {
	select {
	case c.messages <- ev:
		metrics.RecordSinkEvent("channel", "message")
	default:
		metrics.RecordSinkDrop("channel")
	}
}

// PreviewFrame implements Sink.
func (c *ChannelSink) PreviewFrame(f model.Frame) {
	select {
	case c.previews <- f:
		metrics.RecordSinkEvent("channel", "preview")
	default:
		metrics.RecordSinkDrop("channel")
	}
}
