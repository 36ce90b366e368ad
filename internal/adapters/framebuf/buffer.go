// Package framebuf holds the single most recent frame shared between the
// capture loop and its readers.
package framebuf

import (
	"sync"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

// Stats counts buffer activity.
type Stats struct {
	Published   uint64 `json:"published"`
	Overwritten uint64 `json:"overwritten"`
	Reads       uint64 `json:"reads"`
	LastSeq     uint64 `json:"last_seq"`
}

// Buffer is a single-slot, last-write-wins frame cell. Publish never blocks
// on readers and Latest never waits for a frame.
type Buffer struct {
	mu     sync.Mutex
	frame  model.Frame
	has    bool
	unread bool
	stats  Stats
	record bool
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithoutMetrics disables Prometheus accounting, for secondary buffers.
func WithoutMetrics() Option {
	return func(b *Buffer) { b.record = false }
}

// New creates an empty buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{record: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stores f, replacing any previous frame. The buffer takes ownership
// of f; callers must not modify it afterwards.
func (b *Buffer) Publish(f model.Frame) {
	b.mu.Lock()
	overwrote := b.has && b.unread
	b.frame = f
	b.has = true
	b.unread = true
	b.stats.Published++
	b.stats.LastSeq = f.Seq
	if overwrote {
		b.stats.Overwritten++
	}
	b.mu.Unlock()

	if b.record {
		metrics.RecordBufferPublish(overwrote)
	}
}

// Latest returns a copy of the stored frame, or false if nothing was ever
// published.
func (b *Buffer) Latest() (model.Frame, bool) {
	b.mu.Lock()
	if !b.has {
		b.mu.Unlock()
		return model.Frame{}, false
	}
	f := b.frame
	b.unread = false
	b.stats.Reads++
	b.mu.Unlock()

	// the stored pixels are never mutated, so the copy happens outside the lock
	return f.Clone(), true
}

// Reset drops the stored frame.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.frame = model.Frame{}
	b.has = false
	b.unread = false
	b.mu.Unlock()
}

// Stats returns a copy of the counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
