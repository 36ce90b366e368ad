// Package overlay renders the annotated preview: the frame scaled down, the
// classifier's keypoints joined by lines and a status bar in the posture
// color.
package overlay

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Defaults for the preview stage.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultWidth    = 320
	barOpacity      = 0.75
)

// PreviewSink receives annotated frames.
type PreviewSink interface {
	PreviewFrame(f model.Frame)
}

// Option configures a Stage.
type Option func(*Stage)

// WithInterval sets the minimum time between annotated frames.
func WithInterval(d time.Duration) Option {
	return func(s *Stage) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWidth sets the preview width; height keeps the aspect ratio.
func WithWidth(w int) Option {
	return func(s *Stage) {
		if w > 0 {
			s.width = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Stage) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for throttling.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) {
		if now != nil {
			s.now = now
		}
	}
}

// Stage annotates a throttled subset of captured frames. Hook runs on the
// capture goroutine and hands work to a single background annotation; a
// frame arriving while one is in flight is skipped.
type Stage struct {
	detector   posture.Detector
	classifier *posture.Classifier
	out        PreviewSink
	interval   time.Duration
	width      int
	log        logger.Logger
	now        func() time.Time

	busy atomic.Bool
	last atomic.Int64
}

// NewStage creates a stage that classifies with its own detector call so the
// evaluation cadence is never blocked by preview work.
func NewStage(detector posture.Detector, classifier *posture.Classifier, out PreviewSink, opts ...Option) (*Stage, error) {
	if detector == nil {
		return nil, posture.ErrNilDetector
	}
	if classifier == nil {
		classifier = posture.NewClassifier()
	}
	s := &Stage{
		detector:   detector,
		classifier: classifier,
		out:        out,
		interval:   DefaultInterval,
		width:      DefaultWidth,
		log:        logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hook matches the camera frame hook signature.
func (s *Stage) Hook(ctx context.Context, f model.Frame) {
	now := s.now()
	if last := s.last.Load(); last != 0 && now.Sub(time.Unix(0, last)) < s.interval {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		metrics.RecordPreviewSkipped()
		return
	}
	s.last.Store(now.UnixNano())
	go func() {
		annotated, err := s.Annotate(ctx, f)
		s.busy.Store(false)
		if err != nil {
			s.log.Debug(ctx, "preview annotation failed", logger.Error(err))
			return
		}
		s.out.PreviewFrame(annotated)
	}()
}

// Annotate renders one preview frame synchronously.
func (s *Stage) Annotate(ctx context.Context, f model.Frame) (model.Frame, error) {
	src, err := ToImage(f)
	if err != nil {
		return model.Frame{}, err
	}

	width := s.width
	if width > f.Width {
		width = f.Width
	}
	img := imaging.Resize(src, width, 0, imaging.Linear)

	status := model.StatusUninitialized
	set, err := s.detector.Detect(ctx, f)
	if err != nil {
		s.log.Debug(ctx, "preview landmark extraction failed", logger.Error(err))
	}
	if set != nil {
		if st, _, cerr := s.classifier.Classify(set); cerr == nil {
			status = st
			s.drawSkeleton(img, set, statusColor(st))
		}
	}

	b := img.Bounds()
	barHeight := b.Dy() / 12
	if barHeight < 4 {
		barHeight = 4
	}
	bar := imaging.New(b.Dx(), barHeight, statusColor(status))
	img = imaging.Overlay(img, bar, image.Pt(0, 0), barOpacity)

	metrics.RecordPreviewFrame()
	return FromImage(f, img), nil
}

func (s *Stage) drawSkeleton(img *image.NRGBA, set *model.LandmarkSet, c color.NRGBA) {
	b := img.Bounds()
	px := func(p model.Point) image.Point {
		return image.Pt(int(p.X*float64(b.Dx())), int(p.Y*float64(b.Dy())))
	}

	knee, hip, shoulder, ear := s.classifier.Keypoints()
	var chain []image.Point
	for _, name := range []model.LandmarkName{knee, hip, shoulder, ear} {
		l, ok := set.Get(name)
		if !ok {
			return
		}
		chain = append(chain, px(l.Point()))
	}
	earLm, _ := set.Get(ear)
	virtual := px(s.classifier.VirtualPoint(earLm.Point()))

	thickness := b.Dx() / 160
	for i := 1; i < len(chain); i++ {
		line(img, chain[i-1], chain[i], c, thickness)
	}
	line(img, chain[len(chain)-1], virtual, c, 0)
	for _, p := range chain {
		dot(img, p, c, thickness+2)
	}
}
