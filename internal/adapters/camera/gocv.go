//go:build gocv

package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posture/internal/domain/model"
	"gocv.io/x/gocv"
)

// BackendGoCV names the OpenCV backend.
const BackendGoCV = "gocv"

func init() { //nolint:gochecknoinits // backend registration
	Register(BackendGoCV, func(cfg DeviceConfig) (Device, error) {
		return NewVideoCapture(cfg), nil
	})
}

// VideoCapture reads frames from an OpenCV capture device.
type VideoCapture struct {
	cfg DeviceConfig

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	bgr gocv.Mat
	seq uint64
}

// NewVideoCapture creates an unopened OpenCV device.
func NewVideoCapture(cfg DeviceConfig) *VideoCapture {
	return &VideoCapture{cfg: cfg}
}

// Open opens the device by index, or by path when Device is not numeric.
func (v *VideoCapture) Open(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vc != nil {
		return nil
	}

	var target any = v.cfg.Device
	if idx, err := strconv.Atoi(v.cfg.Device); err == nil {
		target = idx
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return ErrCameraUnavailable
	}
	if v.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(v.cfg.Width))
	}
	if v.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(v.cfg.Height))
	}
	if v.cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(v.cfg.FPS))
	}
	v.vc = vc
	v.bgr = gocv.NewMat()
	return nil
}

// Read grabs one frame and converts it to RGBA. The underlying call blocks
// until the driver delivers a frame; ctx is only checked beforehand.
func (v *VideoCapture) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vc == nil {
		return model.Frame{}, ErrNotOpen
	}
	if ok := v.vc.Read(&v.bgr); !ok || v.bgr.Empty() {
		return model.Frame{}, fmt.Errorf("%w: empty read", ErrCameraUnavailable)
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(v.bgr, &rgba, gocv.ColorBGRToRGBA)
	if rgba.Empty() {
		return model.Frame{}, fmt.Errorf("%w: color conversion failed", ErrCameraUnavailable)
	}

	v.seq++
	return model.Frame{
		ID:         uuid.NewString(),
		Seq:        v.seq,
		Width:      rgba.Cols(),
		Height:     rgba.Rows(),
		Encoding:   model.EncodingRGBA,
		Data:       rgba.ToBytes(),
		CapturedAt: time.Now(),
	}, nil
}

// Close releases the capture handle.
func (v *VideoCapture) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vc == nil {
		return nil
	}
	_ = v.bgr.Close()
	err := v.vc.Close()
	v.vc = nil
	return err
}
