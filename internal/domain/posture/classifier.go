// Package posture classifies sitting posture from pose landmarks.
package posture

import (
	"fmt"
	"strings"

	"github.com/okian/posture/internal/domain/model"
)

// Default thresholds in degrees and normalized image units.
const (
	DefaultVirtualOffset = 0.1
	DefaultKHSMin        = 75.0
	DefaultKHSMax        = 105.0
	DefaultHSEMin        = 165.0
	DefaultSEVMin        = 165.0
)

// BodySide selects which side's keypoints are used.
type BodySide int

const (
	SideLeft BodySide = iota
	SideRight
)

// ParseBodySide accepts "left" or "right".
func ParseBodySide(v string) (BodySide, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return SideLeft, fmt.Errorf("unknown body side %q", v)
	}
}

// Thresholds bound the three joint angles for good posture.
type Thresholds struct {
	KHSMin float64
	KHSMax float64
	HSEMin float64
	SEVMin float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{KHSMin: DefaultKHSMin, KHSMax: DefaultKHSMax, HSEMin: DefaultHSEMin, SEVMin: DefaultSEVMin}
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithThresholds overrides the angle thresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Classifier) {
		if t.KHSMin <= t.KHSMax {
			c.thresholds = t
		}
	}
}

// WithBodySide selects the body side.
func WithBodySide(side BodySide) Option {
	return func(c *Classifier) { c.side = side }
}

// WithVirtualOffset sets how far above the ear the vertical reference point sits.
func WithVirtualOffset(offset float64) Option {
	return func(c *Classifier) {
		if offset > 0 {
			c.virtualOffset = offset
		}
	}
}

// Classifier scores a landmark set as good posture or slouch. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	thresholds    Thresholds
	side          BodySide
	virtualOffset float64
}

// NewClassifier creates a classifier with the default thresholds, left side.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		thresholds:    DefaultThresholds(),
		side:          SideLeft,
		virtualOffset: DefaultVirtualOffset,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keypoints returns the knee, hip, shoulder and ear names for the configured side.
func (c *Classifier) Keypoints() (knee, hip, shoulder, ear model.LandmarkName) {
	if c.side == SideRight {
		return model.RightKnee, model.RightHip, model.RightShoulder, model.RightEar
	}
	return model.LeftKnee, model.LeftHip, model.LeftShoulder, model.LeftEar
}

// VirtualPoint is the upright reference above the ear.
func (c *Classifier) VirtualPoint(ear model.Point) model.Point {
	return model.Point{X: ear.X, Y: ear.Y - c.virtualOffset}
}

// Classify returns GoodPosture only when every angle is within its threshold.
// A missing keypoint returns ErrMissingLandmark and StatusUninitialized.
func (c *Classifier) Classify(set *model.LandmarkSet) (model.PostureStatus, model.Angles, error) {
	kneeName, hipName, shoulderName, earName := c.Keypoints()

	points := make([]model.Point, 0, 4)
	for _, name := range []model.LandmarkName{kneeName, hipName, shoulderName, earName} {
		l, ok := set.Get(name)
		if !ok {
			return model.StatusUninitialized, model.Angles{}, fmt.Errorf("%w: %s", ErrMissingLandmark, name)
		}
		points = append(points, l.Point())
	}
	knee, hip, shoulder, ear := points[0], points[1], points[2], points[3]

	angles := model.Angles{
		KneeHipShoulder:    FindAngle(knee, hip, shoulder),
		HipShoulderEar:     FindAngle(hip, shoulder, ear),
		ShoulderEarVirtual: FindAngle(shoulder, ear, c.VirtualPoint(ear)),
	}
	return c.StatusFor(angles), angles, nil
}

// StatusFor applies the thresholds to precomputed angles.
func (c *Classifier) StatusFor(a model.Angles) model.PostureStatus {
	t := c.thresholds
	good := a.KneeHipShoulder >= t.KHSMin && a.KneeHipShoulder <= t.KHSMax &&
		a.HipShoulderEar >= t.HSEMin &&
		a.ShoulderEarVirtual >= t.SEVMin
	if good {
		return model.StatusGood
	}
	return model.StatusSlouch
}
