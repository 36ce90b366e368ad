package posture

import "errors"

// Sentinel errors for posture evaluation.
var (
	ErrMissingLandmark = errors.New("required landmark missing")
	ErrNilDetector     = errors.New("landmark detector is nil")
)
