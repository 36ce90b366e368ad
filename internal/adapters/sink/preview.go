package sink

import (
	"github.com/okian/posture/internal/adapters/framebuf"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

// PreviewSink keeps the latest annotated preview frame for readers such as
// the HTTP preview endpoint.
type PreviewSink struct {
	Nop
	buf *framebuf.Buffer
}

// NewPreviewSink stores previews in buf.
func NewPreviewSink(buf *framebuf.Buffer) *PreviewSink {
	return &PreviewSink{buf: buf}
}

// PreviewFrame implements Sink.
func (p *PreviewSink) PreviewFrame(f model.Frame) {
	p.buf.Publish(f)
	metrics.RecordSinkEvent("preview", "frame")
}

// Latest returns the most recent preview.
func (p *PreviewSink) Latest() (model.Frame, bool) { return p.buf.Latest() }
