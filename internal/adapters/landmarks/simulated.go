package landmarks

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
)

var _ posture.Detector = (*Simulated)(nil)

const simulatedJitter = 0.004

// Reference poses for the left side in normalized image coordinates.
var (
	uprightPose = pose{
		knee:     model.Point{X: 0.70, Y: 0.60},
		hip:      model.Point{X: 0.50, Y: 0.60},
		shoulder: model.Point{X: 0.50, Y: 0.30},
		ear:      model.Point{X: 0.50, Y: 0.15},
	}
	slouchedPose = pose{
		knee:     model.Point{X: 0.70, Y: 0.60},
		hip:      model.Point{X: 0.48, Y: 0.60},
		shoulder: model.Point{X: 0.55, Y: 0.32},
		ear:      model.Point{X: 0.65, Y: 0.20},
	}
)

type pose struct {
	knee, hip, shoulder, ear model.Point
}

// SimulatedOption configures a Simulated detector.
type SimulatedOption func(*Simulated)

// WithSeed makes the sequence reproducible. Zero seeds from the clock.
func WithSeed(seed int64) SimulatedOption {
	return func(s *Simulated) {
		if seed != 0 {
			s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // not security sensitive
		}
	}
}

// WithSlouchProbability sets the chance that a frame shows a slouch.
func WithSlouchProbability(p float64) SimulatedOption {
	return func(s *Simulated) {
		if p >= 0 && p <= 1 {
			s.slouchProb = p
		}
	}
}

// WithMissProbability sets the chance that nobody is detected.
func WithMissProbability(p float64) SimulatedOption {
	return func(s *Simulated) {
		if p >= 0 && p <= 1 {
			s.missProb = p
		}
	}
}

// Simulated ignores pixels and returns a slightly jittered upright or
// slouched pose at random. It is safe for concurrent use.
type Simulated struct {
	mu         sync.Mutex
	rng        *rand.Rand
	slouchProb float64
	missProb   float64
}

// NewSimulated creates a simulator with an even slouch chance and no misses.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // not security sensitive
		slouchProb: 0.5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect implements posture.Detector.
func (s *Simulated) Detect(ctx context.Context, _ model.Frame) (*model.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.missProb > 0 && s.rng.Float64() < s.missProb {
		return nil, nil
	}
	p := uprightPose
	if s.rng.Float64() < s.slouchProb {
		p = slouchedPose
	}

	set := &model.LandmarkSet{}
	set.Set(model.LeftKnee, s.landmark(p.knee))
	set.Set(model.LeftHip, s.landmark(p.hip))
	set.Set(model.LeftShoulder, s.landmark(p.shoulder))
	set.Set(model.LeftEar, s.landmark(p.ear))
	// Mirror onto the right side so either body side classifies the same.
	set.Set(model.RightKnee, mirror(s.landmark(p.knee)))
	set.Set(model.RightHip, mirror(s.landmark(p.hip)))
	set.Set(model.RightShoulder, mirror(s.landmark(p.shoulder)))
	set.Set(model.RightEar, mirror(s.landmark(p.ear)))
	return set, nil
}

func (s *Simulated) landmark(pt model.Point) model.Landmark {
	return model.Landmark{
		X:          pt.X + (s.rng.Float64()*2-1)*simulatedJitter,
		Y:          pt.Y + (s.rng.Float64()*2-1)*simulatedJitter,
		Visibility: 0.9,
	}
}

func mirror(l model.Landmark) model.Landmark {
	l.X = 1 - l.X
	return l
}
