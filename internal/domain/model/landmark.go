package model

// LandmarkName indexes a pose keypoint. Values follow the 33-point BlazePose
// topology so oracle responses can be copied by position.
type LandmarkName int

// Pose keypoints used by the classifier and overlay.
const (
	Nose          LandmarkName = 0
	LeftEar       LandmarkName = 7
	RightEar      LandmarkName = 8
	LeftShoulder  LandmarkName = 11
	RightShoulder LandmarkName = 12
	LeftHip       LandmarkName = 23
	RightHip      LandmarkName = 24
	LeftKnee      LandmarkName = 25
	RightKnee     LandmarkName = 26

	// PoseLandmarkCount is the number of keypoints in a full pose.
	PoseLandmarkCount = 33
)

var landmarkNames = map[LandmarkName]string{
	Nose:          "nose",
	LeftEar:       "left_ear",
	RightEar:      "right_ear",
	LeftShoulder:  "left_shoulder",
	RightShoulder: "right_shoulder",
	LeftHip:       "left_hip",
	RightHip:      "right_hip",
	LeftKnee:      "left_knee",
	RightKnee:     "right_knee",
}

func (n LandmarkName) String() string {
	if s, ok := landmarkNames[n]; ok {
		return s
	}
	return "landmark"
}

// Landmark is a normalized keypoint: X and Y in [0,1] of image width and
// height, Y growing downwards.
type Landmark struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
	Present    bool
}

// Point is a 2D coordinate in normalized image space.
type Point struct {
	X float64
	Y float64
}

// Point drops Z and visibility.
func (l Landmark) Point() Point { return Point{X: l.X, Y: l.Y} }

// LandmarkSet is a fixed collection of pose keypoints with per-point presence.
type LandmarkSet struct {
	points [PoseLandmarkCount]Landmark
}

// Set stores a landmark and marks it present.
func (s *LandmarkSet) Set(name LandmarkName, l Landmark) {
	if name < 0 || int(name) >= PoseLandmarkCount {
		return
	}
	l.Present = true
	s.points[name] = l
}

// Get returns the landmark and whether it is present.
func (s *LandmarkSet) Get(name LandmarkName) (Landmark, bool) {
	if s == nil || name < 0 || int(name) >= PoseLandmarkCount {
		return Landmark{}, false
	}
	l := s.points[name]
	return l, l.Present
}

// Count returns the number of present landmarks.
func (s *LandmarkSet) Count() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, l := range s.points {
		if l.Present {
			n++
		}
	}
	return n
}
