package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posture/internal/domain/model"
)

// BackendSynthetic names the generated-frame backend.
const BackendSynthetic = "synthetic"

func init() { //nolint:gochecknoinits // backend registration
	Register(BackendSynthetic, func(cfg DeviceConfig) (Device, error) {
		return NewSynthetic(cfg.Width, cfg.Height, cfg.FPS), nil
	})
}

// Synthetic generates moving gradient RGBA frames at a fixed rate. It stands
// in for a webcam in demos and when no capture backend is compiled in.
type Synthetic struct {
	width    int
	height   int
	interval time.Duration

	mu   sync.Mutex
	open bool
	seq  uint64
	last time.Time
}

// NewSynthetic creates a synthetic device; non-positive values get 320x240 at 15 fps.
func NewSynthetic(width, height, fps int) *Synthetic {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 240
	}
	if fps <= 0 {
		fps = 15
	}
	return &Synthetic{width: width, height: height, interval: time.Second / time.Duration(fps)}
}

// Open implements Device.
func (s *Synthetic) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Read paces frames to the configured rate and honors ctx while waiting.
func (s *Synthetic) Read(ctx context.Context) (model.Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return model.Frame{}, ErrNotOpen
	}
	wait := time.Until(s.last.Add(s.interval))
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return model.Frame{}, fmt.Errorf("synthetic read: %w", ctx.Err())
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return model.Frame{}, ErrNotOpen
	}
	s.seq++
	s.last = time.Now()
	return model.Frame{
		ID:         uuid.NewString(),
		Seq:        s.seq,
		Width:      s.width,
		Height:     s.height,
		Encoding:   model.EncodingRGBA,
		Data:       s.render(s.seq),
		CapturedAt: s.last,
	}, nil
}

// Close implements Device.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *Synthetic) render(seq uint64) []byte {
	data := make([]byte, s.width*s.height*4)
	shift := int(seq % 256)
	for y := 0; y < s.height; y++ {
		row := y * s.width * 4
		for x := 0; x < s.width; x++ {
			i := row + x*4
			data[i] = byte((x + shift) % 256)
			data[i+1] = byte((y + shift) % 256)
			data[i+2] = byte((x + y) % 256)
			data[i+3] = 0xff
		}
	}
	return data
}
