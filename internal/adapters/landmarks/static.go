package landmarks

import (
	"context"
	"sync"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
)

var _ posture.Detector = (*Static)(nil)

// Static returns a fixed result. Set swaps the result at runtime.
type Static struct {
	mu    sync.RWMutex
	set   *model.LandmarkSet
	err   error
	calls int
}

// NewStatic returns a detector that always yields set and err. A nil set
// with a nil error reports no detection.
func NewStatic(set *model.LandmarkSet, err error) *Static {
	return &Static{set: set, err: err}
}

// Set replaces the fixed result.
func (s *Static) Set(set *model.LandmarkSet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set, s.err = set, err
}

// Calls returns the number of Detect calls.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// Detect implements posture.Detector.
func (s *Static) Detect(context.Context, model.Frame) (*model.LandmarkSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.set == nil {
		return nil, s.err
	}
	cp := *s.set
	return &cp, s.err
}

// UprightPose returns a left-and-right landmark set that classifies as good
// posture with the default thresholds.
func UprightPose() *model.LandmarkSet { return poseSet(uprightPose) }

// SlouchedPose returns a landmark set that classifies as a slouch.
func SlouchedPose() *model.LandmarkSet { return poseSet(slouchedPose) }

func poseSet(p pose) *model.LandmarkSet {
	set := &model.LandmarkSet{}
	for _, side := range []struct {
		knee, hip, shoulder, ear model.LandmarkName
		flip                     bool
	}{
		{model.LeftKnee, model.LeftHip, model.LeftShoulder, model.LeftEar, false},
		{model.RightKnee, model.RightHip, model.RightShoulder, model.RightEar, true},
	} {
		for _, kp := range []struct {
			name model.LandmarkName
			pt   model.Point
		}{{side.knee, p.knee}, {side.hip, p.hip}, {side.shoulder, p.shoulder}, {side.ear, p.ear}} {
			l := model.Landmark{X: kp.pt.X, Y: kp.pt.Y, Visibility: 1}
			if side.flip {
				l = mirror(l)
			}
			set.Set(kp.name, l)
		}
	}
	return set
}
