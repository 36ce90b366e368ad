package model

import "time"

// Outcome says how a posture sample was obtained.
type Outcome int

const (
	// OutcomeDetected means landmarks were found and classified.
	OutcomeDetected Outcome = iota
	// OutcomeNoDetection means no frame or no complete set of landmarks.
	OutcomeNoDetection
	// OutcomeExtractionFailed means the landmark oracle returned an error.
	OutcomeExtractionFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDetected:
		return "detected"
	case OutcomeNoDetection:
		return "no_detection"
	case OutcomeExtractionFailed:
		return "extraction_failed"
	default:
		return "unknown"
	}
}

// Angles are the three joint angles in degrees.
type Angles struct {
	KneeHipShoulder    float64 `json:"knee_hip_shoulder"`
	HipShoulderEar     float64 `json:"hip_shoulder_ear"`
	ShoulderEarVirtual float64 `json:"shoulder_ear_virtual"`
}

// PostureSample is the evaluation of one frame.
type PostureSample struct {
	Status     PostureStatus
	Outcome    Outcome
	Angles     Angles
	CapturedAt time.Time
	Err        error
}

// IsSlouch reports whether the sample scored as slouching.
func (s PostureSample) IsSlouch() bool { return s.Status == StatusSlouch }
