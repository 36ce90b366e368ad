package posture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Detector extracts pose landmarks from a frame. A nil set with a nil error
// means no person was found; an error means extraction itself failed.
type Detector interface {
	Detect(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error) {
	return f(ctx, frame)
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithNoDetectionStatus sets the status reported when nothing was detected
// or extraction failed. Only StatusGood and StatusSlouch are accepted.
func WithNoDetectionStatus(s model.PostureStatus) EvaluatorOption {
	return func(e *Evaluator) {
		if s == model.StatusGood || s == model.StatusSlouch {
			e.noDetection = s
		}
	}
}

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(l logger.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDetectTimeout bounds a single Detect call.
func WithDetectTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the time source used when no frame is available.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// Evaluator runs landmark extraction and classification for one frame.
type Evaluator struct {
	detector    Detector
	classifier  *Classifier
	noDetection model.PostureStatus
	timeout     time.Duration
	log         logger.Logger
	now         func() time.Time
}

// NewEvaluator wires a detector to a classifier. With no policy option a
// missing detection reports GoodPosture.
func NewEvaluator(detector Detector, classifier *Classifier, opts ...EvaluatorOption) (*Evaluator, error) {
	if detector == nil {
		return nil, ErrNilDetector
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	e := &Evaluator{
		detector:    detector,
		classifier:  classifier,
		noDetection: model.StatusGood,
		log:         logger.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NoDetectionStatus returns the configured fallback status.
func (e *Evaluator) NoDetectionStatus() model.PostureStatus { return e.noDetection }

// Classifier returns the underlying classifier.
func (e *Evaluator) Classifier() *Classifier { return e.classifier }

// Evaluate scores one frame. ok=false means no frame was available.
func (e *Evaluator) Evaluate(ctx context.Context, frame model.Frame, ok bool) model.PostureSample {
	start := time.Now()
	sample := e.evaluate(ctx, frame, ok)
	metrics.RecordClassificationLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordClassification(sample.Outcome.String(), sample.Status.Key())
	return sample
}

func (e *Evaluator) evaluate(ctx context.Context, frame model.Frame, ok bool) model.PostureSample {
	if !ok {
		return model.PostureSample{Status: e.noDetection, Outcome: model.OutcomeNoDetection, CapturedAt: e.now()}
	}

	sample := model.PostureSample{CapturedAt: frame.CapturedAt}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = e.now()
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	set, err := e.detector.Detect(ctx, frame)
	if err != nil {
		e.log.Warn(ctx, "landmark extraction failed", logger.Error(err), logger.Int64("frame_seq", int64(frame.Seq))) //nolint:gosec // seq fits
		metrics.RecordErrorByComponent("oracle", "extract")
		sample.Status = e.noDetection
		sample.Outcome = model.OutcomeExtractionFailed
		sample.Err = fmt.Errorf("detect frame %d: %w", frame.Seq, err)
		return sample
	}
	if set == nil {
		sample.Status = e.noDetection
		sample.Outcome = model.OutcomeNoDetection
		return sample
	}

	status, angles, err := e.classifier.Classify(set)
	if errors.Is(err, ErrMissingLandmark) {
		e.log.Debug(ctx, "incomplete landmark set", logger.Error(err))
		sample.Status = e.noDetection
		sample.Outcome = model.OutcomeNoDetection
		return sample
	}

	sample.Status = status
	sample.Outcome = model.OutcomeDetected
	sample.Angles = angles
	return sample
}
