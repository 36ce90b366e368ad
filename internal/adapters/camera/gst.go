//go:build gst

package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posture/internal/domain/model"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// BackendGStreamer names the v4l2 GStreamer backend.
const BackendGStreamer = "gst"

const gstPullTimeout = 200 * time.Millisecond

var gstInitOnce sync.Once

func init() { //nolint:gochecknoinits // backend registration
	Register(BackendGStreamer, func(cfg DeviceConfig) (Device, error) {
		return NewGStreamer(cfg), nil
	})
}

// GStreamer reads RGBA frames from a v4l2 device through an appsink.
type GStreamer struct {
	cfg DeviceConfig

	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	seq      uint64
}

// NewGStreamer creates an unopened GStreamer device.
func NewGStreamer(cfg DeviceConfig) *GStreamer {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 15
	}
	return &GStreamer{cfg: cfg}
}

func (g *GStreamer) launchLine() string {
	dev := g.cfg.Device
	if dev == "" || (len(dev) < 5 || dev[:5] != "/dev/") {
		dev = "/dev/video" + dev
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! videorate ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1 ! "+
			"appsink name=sink sync=false max-buffers=1 drop=true",
		dev, g.cfg.Width, g.cfg.Height, g.cfg.FPS)
}

// Open builds the pipeline and sets it playing.
func (g *GStreamer) Open(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline != nil {
		return nil
	}
	gstInitOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(g.launchLine())
	if err != nil {
		return fmt.Errorf("%w: build pipeline: %w", ErrCameraUnavailable, err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return fmt.Errorf("%w: appsink: %w", ErrCameraUnavailable, err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: start pipeline: %w", ErrCameraUnavailable, err)
	}
	g.pipeline = pipeline
	g.sink = app.SinkFromElement(elem)
	return nil
}

// Read pulls the next sample, polling so ctx cancellation is observed.
func (g *GStreamer) Read(ctx context.Context) (model.Frame, error) {
	g.mu.Lock()
	sink := g.sink
	g.mu.Unlock()
	if sink == nil {
		return model.Frame{}, ErrNotOpen
	}

	for {
		if err := ctx.Err(); err != nil {
			return model.Frame{}, err
		}
		sample := sink.TryPullSample(gstPullTimeout)
		if sample == nil {
			if sink.IsEOS() {
				return model.Frame{}, fmt.Errorf("%w: end of stream", ErrCameraUnavailable)
			}
			continue
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		frameData := make([]byte, len(data))
		copy(frameData, data)
		buffer.Unmap()
		if len(frameData) == 0 {
			continue
		}

		g.mu.Lock()
		g.seq++
		seq := g.seq
		g.mu.Unlock()
		return model.Frame{
			ID:         uuid.NewString(),
			Seq:        seq,
			Width:      g.cfg.Width,
			Height:     g.cfg.Height,
			Encoding:   model.EncodingRGBA,
			Data:       frameData,
			CapturedAt: time.Now(),
		}, nil
	}
}

// Close stops the pipeline.
func (g *GStreamer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pipeline == nil {
		return nil
	}
	err := g.pipeline.SetState(gst.StateNull)
	g.pipeline = nil
	g.sink = nil
	return err
}
